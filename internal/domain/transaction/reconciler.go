package transaction

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// ReconciledStatus is the provider-confirmed status of one leg.
type ReconciledStatus struct {
	Status                 model.ProviderStatusValue
	ReasonCode             string
	Reason                 string
	FinancialTransactionID string
	Raw                    []byte
	// Mismatch is true when the webhook claimed a different status.
	Mismatch bool
}

// Reconciler asks the provider for the authoritative status of a leg. The
// webhook's claimed status is never trusted on its own.
type Reconciler struct {
	providers outbound.ProviderRegistryPort
	retry     RetryPolicy
	metrics   outbound.MetricsPort
	logger    *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(
	providers outbound.ProviderRegistryPort,
	retry RetryPolicy,
	metrics outbound.MetricsPort,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		providers: providers,
		retry:     retry,
		metrics:   metrics,
		logger:    logger,
	}
}

// Reconcile returns the provider's answer for event on the given rail and leg.
// Any failure to obtain an answer is PROVIDER_UNAVAILABLE and no state may be
// changed on it.
func (r *Reconciler) Reconcile(ctx context.Context, event *model.ProviderStatusEvent, rail model.PaymentMethod, leg model.Leg) (*ReconciledStatus, error) {
	adapter, err := r.providers.Get(rail)
	if err != nil {
		return nil, newError(CodeUnsupportedRail, err)
	}

	policy := r.retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.Warn("provider status check failed, retrying",
			zap.String("rail", string(rail)),
			zap.String("leg", string(leg)),
			zap.String("correlation_id", event.CorrelationID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		r.metrics.ObserveProviderRetry("check_status")
	}

	status, err := Retry(ctx, policy, func(ctx context.Context) (*model.ProviderStatus, error) {
		return adapter.CheckStatus(ctx, event.CorrelationID, leg)
	})
	if err != nil {
		r.logger.Error("provider status check failed",
			zap.String("rail", string(rail)),
			zap.String("leg", string(leg)),
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err),
		)
		de := newError(CodeProviderUnavailable, err)
		if classified := Classify(err); classified.Details != nil {
			de.Details = classified.Details
		}
		return nil, de
	}

	result := &ReconciledStatus{
		Status:                 status.Status,
		ReasonCode:             status.ReasonCode,
		Reason:                 status.Reason,
		FinancialTransactionID: status.FinancialTransactionID,
		Raw:                    status.Raw,
	}
	if result.ReasonCode == "" && result.Status == model.ProviderStatusFailed {
		result.ReasonCode = event.ReasonCode
	}
	if result.FinancialTransactionID == "" {
		result.FinancialTransactionID = event.ProviderMetadata["financialTransactionId"]
	}

	if status.Status != event.Status {
		result.Mismatch = true
		r.metrics.ObserveStatusMismatch(string(rail), string(leg))
		r.logger.Warn("webhook status contradicted by provider",
			zap.String("rail", string(rail)),
			zap.String("leg", string(leg)),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("claimed", string(event.Status)),
			zap.String("reconciled", string(status.Status)),
		)
	}
	if !status.Amount.IsZero() && !status.Amount.Equal(event.Amount) {
		r.logger.Warn("webhook amount differs from provider",
			zap.String("correlation_id", event.CorrelationID),
			zap.String("claimed", event.Amount.String()),
			zap.String("reconciled", status.Amount.String()),
		)
	}

	return result, nil
}
