package transactionhttp

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paylink/reconciler/internal/domain/transaction"
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/inbound"
)

// maxWebhookBody bounds what a provider callback may send.
const maxWebhookBody = 1 << 20

// WebhookHandler handles provider callbacks.
type WebhookHandler struct {
	domain transaction.TransactionDomain
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(domain transaction.TransactionDomain) *WebhookHandler {
	return &WebhookHandler{domain: domain}
}

// RegisterRoutes registers webhook routes. Callbacks carry no operator auth.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/:rail/:leg", h.HandleWebhook)
}

// HandleWebhook handles POST /webhooks/:rail/:leg.
//
// Expected outcomes (applied, already processed, pending) answer 200 so the
// provider stops redelivering. Faults answer with the taxonomy status; 503
// invites a redelivery.
//
//	@Summary	Provider callback
//	@Tags		Webhook
//	@Accept		json
//	@Produce	json
//	@Param		rail	path		string	true	"card | mobile_a | mobile_b"
//	@Param		leg		path		string	true	"payment | settlement | customer_refund | merchant_refund"
//	@Success	200		{object}	model.WebhookResult
//	@Failure	400		{object}	errors.ErrorResponse
//	@Failure	404		{object}	errors.ErrorResponse
//	@Failure	503		{object}	errors.ErrorResponse
//	@Router		/webhooks/{rail}/{leg} [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	rail, ok := model.ParsePaymentMethod(c.Param("rail"))
	if !ok {
		handleError(c, transaction.ErrUnsupportedRail.WithDetails(map[string]any{"rail": c.Param("rail")}))
		return
	}
	leg, ok := model.ParseLeg(c.Param("leg"))
	if !ok {
		handleError(c, transaction.ErrInvalidRequest.WithDetails(map[string]any{"leg": c.Param("leg")}))
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		handleError(c, transaction.ErrMalformedPayload.WithDetails(map[string]any{"reason": err.Error()}))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for key := range c.Request.Header {
		headers[strings.ToLower(key)] = c.GetHeader(key)
	}

	result, err := h.domain.HandleWebhook(c.Request.Context(), &model.WebhookRequest{
		Rail:    rail,
		Leg:     leg,
		Payload: payload,
		Headers: headers,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Compile-time check
var _ inbound.WebhookHttpPort = (*WebhookHandler)(nil)
