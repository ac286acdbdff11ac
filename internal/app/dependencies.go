package app

import (
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	transactionhttp "github.com/paylink/reconciler/internal/adapter/inbound/http/transaction"
	"github.com/paylink/reconciler/internal/domain/transaction"
	"github.com/paylink/reconciler/internal/infra/config"
	"github.com/paylink/reconciler/internal/port/outbound"
	"github.com/paylink/reconciler/internal/utils/metrics"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config         *config.Config
	DB             *gorm.DB
	Redis          goredis.UniversalClient
	HTTPClient     *http.Client
	ZapLogger      *zap.Logger
	Metrics        *metrics.Metrics
	TokenValidator outbound.TokenValidatorPort

	// Domains
	TransactionDomain transaction.TransactionDomain

	// HTTP Handlers
	PaymentHandler *transactionhttp.PaymentHandler
	RefundHandler  *transactionhttp.RefundHandler
	WebhookHandler *transactionhttp.WebhookHandler
}
