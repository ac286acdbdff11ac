package transactionhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paylink/reconciler/internal/domain/transaction"
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/inbound"
)

// RefundHandler handles refund HTTP requests.
type RefundHandler struct {
	domain transaction.TransactionDomain
}

// NewRefundHandler creates a new refund handler.
func NewRefundHandler(domain transaction.TransactionDomain) *RefundHandler {
	return &RefundHandler{domain: domain}
}

// RegisterRoutes registers refund routes. r is expected to carry operator auth.
func (h *RefundHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions/:id/refunds", h.RequestCustomerRefund)
	r.POST("/transactions/:id/merchant-refund", h.InitiateMerchantRefund)
}

// RequestCustomerRefund handles POST /transactions/:id/refunds.
//
//	@Summary	Refund a customer
//	@Tags		Refund
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Transaction ID"
//	@Param		request	body		model.RefundRequest	true	"Refund"
//	@Success	202		{object}	model.Transaction
//	@Failure	400		{object}	errors.ErrorResponse
//	@Failure	404		{object}	errors.ErrorResponse
//	@Failure	409		{object}	errors.ErrorResponse
//	@Security	BearerAuth
//	@Router		/transactions/{id}/refunds [post]
func (h *RefundHandler) RequestCustomerRefund(c *gin.Context) {
	var req model.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tx, err := h.domain.RequestCustomerRefund(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, tx)
}

// InitiateMerchantRefund handles POST /transactions/:id/merchant-refund.
//
//	@Summary	Start the merchant refund leg
//	@Tags		Refund
//	@Produce	json
//	@Param		id	path		string	true	"Transaction ID"
//	@Success	202	{object}	model.CascadeResult
//	@Success	200	{object}	model.CascadeResult	"already processed"
//	@Failure	409	{object}	errors.ErrorResponse
//	@Security	BearerAuth
//	@Router		/transactions/{id}/merchant-refund [post]
func (h *RefundHandler) InitiateMerchantRefund(c *gin.Context) {
	result, err := h.domain.InitiateMerchantRefund(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	status := http.StatusAccepted
	if result.Outcome == model.OutcomeAlreadyProcessed {
		status = http.StatusOK
	}
	c.JSON(status, result)
}

// Compile-time check
var _ inbound.RefundHttpPort = (*RefundHandler)(nil)
