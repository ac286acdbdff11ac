package transactionhttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paylink/reconciler/internal/domain/transaction"
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/inbound"
)

// PaymentHandler handles payment HTTP requests.
type PaymentHandler struct {
	domain transaction.TransactionDomain
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(domain transaction.TransactionDomain) *PaymentHandler {
	return &PaymentHandler{domain: domain}
}

// RegisterRoutes registers payment routes.
func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payments", h.CreatePayment)
	r.GET("/transactions/:id", h.GetTransaction)
}

// CreatePayment handles POST /payments.
//
//	@Summary	Create a payment
//	@Tags		Payment
//	@Accept		json
//	@Produce	json
//	@Param		Idempotency-Key	header		string						false	"Replay protection key"
//	@Param		request			body		model.CreatePaymentRequest	true	"Payment"
//	@Success	201				{object}	model.Transaction
//	@Failure	400				{object}	errors.ErrorResponse
//	@Failure	503				{object}	errors.ErrorResponse
//	@Security	BearerAuth
//	@Router		/payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req model.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tx, err := h.domain.CreatePayment(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// GetTransaction handles GET /transactions/:id.
//
//	@Summary	Get a transaction
//	@Tags		Transaction
//	@Produce	json
//	@Param		id	path		string	true	"Transaction ID"
//	@Success	200	{object}	model.Transaction
//	@Failure	404	{object}	errors.ErrorResponse
//	@Security	BearerAuth
//	@Router		/transactions/{id} [get]
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	tx, err := h.domain.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// Compile-time check
var _ inbound.TransactionHttpPort = (*PaymentHandler)(nil)
