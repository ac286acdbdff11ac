package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/wire"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/paylink/reconciler/internal/domain/transaction"

	// Inbound adapters
	transactionhttp "github.com/paylink/reconciler/internal/adapter/inbound/http/transaction"

	// Ports
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"

	// Outbound adapters
	authadapter "github.com/paylink/reconciler/internal/adapter/outbound/auth"
	"github.com/paylink/reconciler/internal/adapter/outbound/memory"
	"github.com/paylink/reconciler/internal/adapter/outbound/postgres"
	"github.com/paylink/reconciler/internal/adapter/outbound/provider"
	redisadapter "github.com/paylink/reconciler/internal/adapter/outbound/redis"
	s3adapter "github.com/paylink/reconciler/internal/adapter/outbound/s3"

	// Infrastructure
	"github.com/paylink/reconciler/internal/infra/cache"
	"github.com/paylink/reconciler/internal/infra/config"
	"github.com/paylink/reconciler/internal/infra/database"
	"github.com/paylink/reconciler/internal/infra/events"
	"github.com/paylink/reconciler/internal/infra/httpclient"
	"github.com/paylink/reconciler/internal/infra/logger"

	// Utils
	"github.com/paylink/reconciler/internal/utils/metrics"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideDatabase,
	ProvideRedisClient,
	ProvideHTTPClient,
	ProvideZapLogger,
	ProvideMetrics,
)

// ProvideDatabase creates a database connection and closes it on cleanup.
func ProvideDatabase(cfg *config.Config, zapLog *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := database.Close(db); err != nil {
			zapLog.Warn("close database", zap.Error(err))
		}
	}
	return db, cleanup, nil
}

// ProvideRedisClient creates a Redis client. Redis is optional: without it
// the service falls back to in-process locking and linking records.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) goredis.UniversalClient {
	if cfg.Redis.Address == "" {
		return nil
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		zapLog.Warn("Redis connection failed, continuing without it", zap.Error(err))
		return nil
	}
	return client
}

// ProvideZapLogger creates a zap logger instance.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.NewZapLogger(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

// ProvideHTTPClient creates a shared HTTP client with connection pooling.
func ProvideHTTPClient(cfg *config.Config, zapLog *zap.Logger) *http.Client {
	return httpclient.New(cfg.HTTPClient, zapLog)
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics(cfg *config.Config) *metrics.Metrics {
	return metrics.New(cfg.Metrics.Namespace)
}

// ===== Outbound Adapter Providers =====

// AdapterSet provides outbound adapters.
var AdapterSet = wire.NewSet(
	postgres.NewTransactionAdapter,
	postgres.NewWebhookDeliveryAdapter,
	ProvideLinkingStore,
	ProvideLocker,
	ProvideEventPublisher,
	ProvideArchive,
	ProvideProviderRegistry,
	ProvideTokenValidator,
	wire.Bind(new(outbound.MetricsPort), new(*metrics.Metrics)),
)

// ProvideLinkingStore keeps merchant refund linking records in Redis when
// available, in process memory otherwise.
func ProvideLinkingStore(cfg *config.Config, redis goredis.UniversalClient) outbound.LinkingRecordPort {
	if redis != nil {
		return redisadapter.NewLinkingRecordStore(redis, cfg.Linking.TTL)
	}
	return memory.NewLinkingRecordStore(cfg.Linking.TTL)
}

// ProvideLocker serializes concurrent webhooks for one transaction. The
// Redis lock is used when enabled so several replicas can share the work.
func ProvideLocker(cfg *config.Config, redis goredis.UniversalClient, zapLog *zap.Logger) outbound.LockPort {
	if cfg.Locking.Enabled && redis != nil {
		return redisadapter.NewDistributedLock(redis, redisadapter.LockConfig{
			TTL:          cfg.Locking.TTL,
			WaitTimeout:  cfg.Locking.WaitTimeout,
			PollInterval: cfg.Locking.PollInterval,
		}, zapLog)
	}
	return memory.NewLocalLock(cfg.Locking.WaitTimeout)
}

// ProvideEventPublisher creates the domain event bus. Events are fanned out
// over Redis pub/sub when a channel is configured and Redis is available.
func ProvideEventPublisher(cfg *config.Config, redis goredis.UniversalClient, zapLog *zap.Logger) outbound.EventPublisherPort {
	bus := events.NewBus(zapLog)
	if redis != nil && cfg.Events.Channel != "" {
		bus.Register(events.NewChannelHandler(redisadapter.NewMessagePublisher(redis), cfg.Events.Channel))
	}
	return bus
}

// ProvideArchive stores raw webhook payloads in S3-compatible storage.
// It returns nil when archiving is disabled.
func ProvideArchive(cfg *config.Config) (outbound.WebhookArchivePort, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	client, err := s3adapter.NewClient(context.Background(), s3adapter.ClientConfig{
		Endpoint:        cfg.Archive.Endpoint,
		Region:          cfg.Archive.Region,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	return s3adapter.NewWebhookArchive(client, cfg.Archive.Bucket, cfg.Archive.Prefix), nil
}

// ProvideProviderRegistry registers a breaker-guarded adapter for every
// configured rail.
func ProvideProviderRegistry(
	cfg *config.Config,
	httpClient *http.Client,
	m *metrics.Metrics,
	zapLog *zap.Logger,
) outbound.ProviderRegistryPort {
	breaker := provider.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Interval:         cfg.Breaker.Interval,
		Timeout:          cfg.Breaker.Timeout,
	}
	registry := provider.NewRegistry()

	if cfg.Stripe.SecretKey != "" {
		stripe := provider.NewStripeAdapter(provider.StripeConfig{
			SecretKey:   cfg.Stripe.SecretKey,
			BackendURL:  cfg.Stripe.BackendURL,
			CallbackURL: webhookURL(cfg, model.PaymentMethodCard),
		}, httpClient, zapLog)
		registry.Register(provider.Guard(stripe, breaker, m, zapLog))
	}

	mobile := []struct {
		rail model.PaymentMethod
		cfg  config.MobileMoneyConfig
	}{
		{model.PaymentMethodMobileA, cfg.MobileA},
		{model.PaymentMethodMobileB, cfg.MobileB},
	}
	for _, mm := range mobile {
		if !mm.cfg.Enabled {
			continue
		}
		callback := mm.cfg.CallbackURL
		if callback == "" {
			callback = webhookURL(cfg, mm.rail)
		}
		adapter := provider.NewMobileMoneyAdapter(provider.MobileMoneyConfig{
			Rail:              mm.rail,
			BaseURL:           mm.cfg.BaseURL,
			TokenURL:          mm.cfg.TokenURL,
			ClientID:          mm.cfg.ClientID,
			ClientSecret:      mm.cfg.ClientSecret,
			CollectionKey:     mm.cfg.CollectionKey,
			DisbursementKey:   mm.cfg.DisbursementKey,
			TargetEnvironment: mm.cfg.TargetEnvironment,
			CallbackURL:       callback,
		}, httpClient, zapLog)
		registry.Register(provider.Guard(adapter, breaker, m, zapLog))
	}

	zapLog.Info("payment rails registered", zap.Any("rails", registry.Rails()))
	return registry
}

// webhookURL is the public webhook route base for a rail.
func webhookURL(cfg *config.Config, rail model.PaymentMethod) string {
	return strings.TrimRight(cfg.Server.PublicURL, "/") + "/api/v1/webhooks/" + strings.ToLower(string(rail))
}

// ProvideTokenValidator returns nil when operator auth is disabled.
func ProvideTokenValidator(cfg *config.Config) outbound.TokenValidatorPort {
	if !cfg.Auth.Enabled {
		return nil
	}
	return authadapter.NewJWTManager(authadapter.JWTConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})
}

// ===== Transaction Domain Providers =====

// DomainSet provides the transaction domain.
var DomainSet = wire.NewSet(
	ProvideDomainConfig,
	ProvideTransactionDomain,
)

// ProvideDomainConfig maps application config onto domain settings.
func ProvideDomainConfig(cfg *config.Config) transaction.Config {
	dc := transaction.DefaultConfig()
	dc.FeePercentage = decimal.NewFromFloat(cfg.Fees.Percentage)
	dc.InstantSettlement = cfg.Features.InstantSettlement
	dc.Sandbox = cfg.Features.Sandbox
	if rail, ok := model.ParsePaymentMethod(cfg.Features.MerchantRail); ok {
		dc.MerchantRail = rail
	}
	if cfg.Retry.MaxUpdateAttempts > 0 {
		dc.MaxUpdateAttempts = cfg.Retry.MaxUpdateAttempts
	}
	if cfg.Retry.MaxAttempts > 0 {
		dc.Retry.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseDelay > 0 {
		dc.Retry.BaseDelay = cfg.Retry.BaseDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		dc.Retry.MaxDelay = cfg.Retry.MaxDelay
	}
	return dc
}

// ProvideTransactionDomain creates the transaction domain.
func ProvideTransactionDomain(
	store outbound.TransactionDatabasePort,
	deliveries outbound.WebhookDeliveryDatabasePort,
	links outbound.LinkingRecordPort,
	locker outbound.LockPort,
	providers outbound.ProviderRegistryPort,
	publisher outbound.EventPublisherPort,
	archive outbound.WebhookArchivePort,
	m outbound.MetricsPort,
	cfg transaction.Config,
	zapLog *zap.Logger,
) (transaction.TransactionDomain, error) {
	return transaction.NewTransactionDomain(
		store,
		deliveries,
		links,
		locker,
		providers,
		publisher,
		archive,
		m,
		cfg,
		zapLog,
	)
}

// ===== HTTP Handler Providers =====

// HandlerSet provides HTTP handlers.
var HandlerSet = wire.NewSet(
	transactionhttp.NewPaymentHandler,
	transactionhttp.NewRefundHandler,
	transactionhttp.NewWebhookHandler,
)

// ===== Combined Sets =====

// AppSet combines all provider sets.
var AppSet = wire.NewSet(
	InfraSet,
	AdapterSet,
	DomainSet,
	HandlerSet,
)
