package inbound

import "github.com/gin-gonic/gin"

// TransactionHttpPort defines HTTP handler interface for payment operations.
type TransactionHttpPort interface {
	// CreatePayment handles POST /payments
	CreatePayment(c *gin.Context)

	// GetTransaction handles GET /transactions/:id
	GetTransaction(c *gin.Context)
}

// RefundHttpPort defines HTTP handler interface for refund operations.
type RefundHttpPort interface {
	// RequestCustomerRefund handles POST /transactions/:id/refunds
	RequestCustomerRefund(c *gin.Context)

	// InitiateMerchantRefund handles POST /transactions/:id/merchant-refund
	// Manual trigger for the merchant leg of the refund cascade (operator only).
	InitiateMerchantRefund(c *gin.Context)
}

// WebhookHttpPort defines HTTP handler interface for provider callbacks.
type WebhookHttpPort interface {
	// HandleWebhook handles POST /webhooks/:rail/:leg
	HandleWebhook(c *gin.Context)
}
