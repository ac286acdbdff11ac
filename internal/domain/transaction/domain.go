package transaction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// TransactionDomain defines the transaction lifecycle service interface.
type TransactionDomain interface {
	// CreatePayment records a new payment and asks the rail to collect it.
	CreatePayment(ctx context.Context, req *model.CreatePaymentRequest) (*model.Transaction, error)

	// GetTransaction returns a transaction by ID.
	GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error)

	// RequestCustomerRefund refunds part or all of a payment to the customer.
	RequestCustomerRefund(ctx context.Context, transactionID string, req *model.RefundRequest) (*model.Transaction, error)

	// InitiateMerchantRefund starts the merchant leg of the refund cascade.
	InitiateMerchantRefund(ctx context.Context, transactionID string) (*model.CascadeResult, error)

	// HandleWebhook validates, reconciles and applies a provider callback.
	HandleWebhook(ctx context.Context, req *model.WebhookRequest) (*model.WebhookResult, error)
}

// Config holds transaction domain settings.
type Config struct {
	FeePercentage     decimal.Decimal
	InstantSettlement bool
	Sandbox           bool
	// MerchantRail carries settlements and merchant refunds.
	MerchantRail      model.PaymentMethod
	MaxUpdateAttempts int
	Retry             RetryPolicy
}

// DefaultConfig returns the default domain configuration.
func DefaultConfig() Config {
	return Config{
		FeePercentage:     DefaultFeePercentage,
		InstantSettlement: true,
		MerchantRail:      model.PaymentMethodMobileA,
		MaxUpdateAttempts: 3,
		Retry:             DefaultRetryPolicy(),
	}
}

// transactionDomain implements TransactionDomain.
type transactionDomain struct {
	store      outbound.TransactionDatabasePort
	deliveries outbound.WebhookDeliveryDatabasePort
	links      outbound.LinkingRecordPort
	locker     outbound.LockPort
	providers  outbound.ProviderRegistryPort
	publisher  outbound.EventPublisherPort
	archive    outbound.WebhookArchivePort
	metrics    outbound.MetricsPort

	validator  *WebhookValidator
	reconciler *Reconciler
	machine    *StateMachine
	fees       *FeeCalculator

	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewTransactionDomain creates a new transaction domain service.
// archive may be nil when raw payload archiving is disabled.
func NewTransactionDomain(
	store outbound.TransactionDatabasePort,
	deliveries outbound.WebhookDeliveryDatabasePort,
	links outbound.LinkingRecordPort,
	locker outbound.LockPort,
	providers outbound.ProviderRegistryPort,
	publisher outbound.EventPublisherPort,
	archive outbound.WebhookArchivePort,
	metrics outbound.MetricsPort,
	cfg Config,
	logger *zap.Logger,
) (TransactionDomain, error) {
	fees, err := NewFeeCalculator(cfg.FeePercentage)
	if err != nil {
		return nil, err
	}
	if cfg.MaxUpdateAttempts < 1 {
		cfg.MaxUpdateAttempts = 1
	}
	if !cfg.MerchantRail.IsValid() {
		cfg.MerchantRail = model.PaymentMethodMobileA
	}

	return &transactionDomain{
		store:      store,
		deliveries: deliveries,
		links:      links,
		locker:     locker,
		providers:  providers,
		publisher:  publisher,
		archive:    archive,
		metrics:    metrics,
		validator:  NewWebhookValidator(),
		reconciler: NewReconciler(providers, cfg.Retry, metrics, logger),
		machine:    NewStateMachine(fees),
		fees:       fees,
		cfg:        cfg,
		now:        time.Now,
		logger:     logger,
	}, nil
}

func (d *transactionDomain) CreatePayment(ctx context.Context, req *model.CreatePaymentRequest) (*model.Transaction, error) {
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}

	adapter, err := d.providers.Get(req.PaymentMethod)
	if err != nil {
		return nil, newError(CodeUnsupportedRail, err)
	}

	now := d.now()
	currency := strings.ToUpper(req.Currency)
	tx := &model.Transaction{
		TransactionID:    uuid.NewString(),
		Status:           model.TransactionStatusPaymentRequestCreated,
		Amount:           req.Amount,
		Currency:         currency,
		PaymentMethod:    req.PaymentMethod,
		MerchantID:       req.MerchantID,
		MerchantMobileNo: req.MerchantMobileNo,
		CustomerPhone:    req.CustomerPhone,
		Description:      req.Description,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	// The transaction id doubles as our payment reference until the rail answers.
	tx.UniqueID = tx.TransactionID

	if err := d.store.Create(ctx, tx); err != nil {
		return nil, internalError("create transaction", err)
	}
	d.publish(ctx, tx)

	payer := req.PayerRef
	if payer == "" {
		payer = req.CustomerPhone
	}

	correlationID, callErr := Retry(ctx, d.retryPolicy("initiate_payment"), func(ctx context.Context) (string, error) {
		return adapter.InitiatePayment(ctx, FormatAmount(tx.Amount, currency), currency, payer, tx.TransactionID)
	})
	if callErr != nil {
		d.logger.Error("payment initiation failed",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("rail", string(tx.PaymentMethod)),
			zap.Error(callErr),
		)
		failed, changed, err := d.mutate(ctx, tx.TransactionID, func(t *model.Transaction) (bool, error) {
			if err := d.machine.Transition(t, model.TransactionStatusFailed); err != nil {
				return false, err
			}
			t.TransactionError = TransactionErrorFrom(callErr, string(t.PaymentMethod))
			return true, nil
		})
		if err != nil {
			d.logger.Error("failed to record payment initiation failure",
				zap.String("transaction_id", tx.TransactionID),
				zap.Error(err),
			)
		} else if changed {
			d.publish(ctx, failed)
		}
		de := newError(CodePaymentInitiationFailed, callErr)
		de.Details = Classify(callErr).Details
		return nil, de
	}

	if correlationID != "" && correlationID != tx.UniqueID {
		updated, _, err := d.mutate(ctx, tx.TransactionID, func(t *model.Transaction) (bool, error) {
			t.ExternalID = t.UniqueID
			t.UniqueID = correlationID
			return true, nil
		})
		if err != nil {
			d.logger.Error("payment initiated but correlation id not recorded",
				zap.String("transaction_id", tx.TransactionID),
				zap.String("correlation_id", correlationID),
				zap.Error(err),
			)
			return nil, err
		}
		tx = updated
	}

	d.logger.Info("payment requested",
		zap.String("transaction_id", tx.TransactionID),
		zap.String("rail", string(tx.PaymentMethod)),
		zap.String("correlation_id", tx.UniqueID),
	)
	d.notifySandbox(tx.PaymentMethod, model.LegPayment, tx.UniqueID, tx.Amount, tx.Currency)

	return tx, nil
}

func (d *transactionDomain) GetTransaction(ctx context.Context, transactionID string) (*model.Transaction, error) {
	tx, err := d.store.FindByID(ctx, transactionID)
	if err != nil {
		return nil, internalError("find transaction", err)
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func validatePaymentRequest(req *model.CreatePaymentRequest) error {
	if !req.Amount.IsPositive() {
		return invalidRequest("amount must be positive")
	}
	if len(req.Currency) != 3 {
		return invalidRequest("currency must be an ISO 4217 code")
	}
	if !FitsMinorUnit(req.Amount, req.Currency) {
		return invalidRequest("amount has more decimals than the currency allows")
	}
	if !req.PaymentMethod.IsValid() {
		return newError(CodeUnsupportedRail, nil)
	}
	if req.MerchantID == "" {
		return invalidRequest("merchant_id is required")
	}
	if req.PaymentMethod != model.PaymentMethodCard && req.CustomerPhone == "" && req.PayerRef == "" {
		return invalidRequest("customer_phone is required for mobile rails")
	}
	return nil
}

// mutate re-reads the transaction, applies fn and writes the result back
// under the version it read. A lost race re-runs fn on a fresh read, up to
// MaxUpdateAttempts times. fn reports whether it changed anything.
func (d *transactionDomain) mutate(
	ctx context.Context,
	transactionID string,
	fn func(tx *model.Transaction) (bool, error),
) (*model.Transaction, bool, error) {
	for attempt := 1; attempt <= d.cfg.MaxUpdateAttempts; attempt++ {
		tx, err := d.store.FindByID(ctx, transactionID)
		if err != nil {
			return nil, false, internalError("find transaction", err)
		}
		if tx == nil {
			return nil, false, ErrTransactionNotFound
		}

		from := tx.Status
		version := tx.Version
		changed, err := fn(tx)
		if err != nil {
			return tx, false, err
		}
		if !changed {
			return tx, false, nil
		}

		tx.UpdatedAt = d.now()
		err = d.store.UpdateIfVersion(ctx, tx, version)
		if errors.Is(err, outbound.ErrConcurrentModification) {
			d.logger.Debug("transaction changed underneath, retrying",
				zap.String("transaction_id", transactionID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, false, internalError("update transaction", err)
		}

		if from != tx.Status {
			d.metrics.ObserveTransition(string(from), string(tx.Status))
		}
		return tx, true, nil
	}
	return nil, false, ErrConcurrentModification
}

// withLock runs fn while holding the per-transaction lock.
func (d *transactionDomain) withLock(ctx context.Context, transactionID string, fn func(ctx context.Context) error) error {
	release, err := d.locker.Acquire(ctx, "transaction:"+transactionID)
	if err != nil {
		if errors.Is(err, outbound.ErrLockTimeout) {
			return newError(CodeConcurrentModification, err)
		}
		return internalError("acquire lock", err)
	}
	defer release()
	return fn(ctx)
}

func (d *transactionDomain) publish(ctx context.Context, tx *model.Transaction) {
	event := model.NewTransactionEvent(tx)
	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Warn("failed to publish transaction event",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("status", string(tx.Status)),
			zap.Error(err),
		)
	}
}

func (d *transactionDomain) retryPolicy(operation string) RetryPolicy {
	policy := d.cfg.Retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		d.logger.Warn("provider call failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		d.metrics.ObserveProviderRetry(operation)
	}
	return policy
}

// railFor returns the rail that carries a leg of tx.
func (d *transactionDomain) railFor(tx *model.Transaction, leg model.Leg) model.PaymentMethod {
	switch leg {
	case model.LegSettlement, model.LegMerchantRefund:
		return d.cfg.MerchantRail
	default:
		return tx.PaymentMethod
	}
}

// merchantPayee returns the merchant's account on the merchant rail.
func (d *transactionDomain) merchantPayee(tx *model.Transaction) string {
	if d.cfg.MerchantRail == model.PaymentMethodCard || tx.MerchantMobileNo == "" {
		return tx.MerchantID
	}
	return tx.MerchantMobileNo
}

// dropLinks deletes linking records; failures only leave records to expire.
func (d *transactionDomain) dropLinks(ctx context.Context, ids ...string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := d.links.Delete(ctx, id); err != nil {
			d.logger.Warn("failed to delete linking record", zap.String("id", id), zap.Error(err))
		}
	}
}

// notifySandbox asks a simulated rail to deliver the webhook for a leg.
// It runs detached so the callback can take the transaction lock.
func (d *transactionDomain) notifySandbox(rail model.PaymentMethod, leg model.Leg, correlationID string, amount decimal.Decimal, currency string) {
	if !d.cfg.Sandbox {
		return
	}
	adapter, err := d.providers.Get(rail)
	if err != nil {
		return
	}
	event := &model.ProviderStatusEvent{
		CorrelationID: correlationID,
		Amount:        amount,
		Currency:      currency,
		Status:        model.ProviderStatusSuccessful,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := adapter.NotifyCounterparty(ctx, event, leg); err != nil {
			d.logger.Warn("sandbox notification failed",
				zap.String("rail", string(rail)),
				zap.String("leg", string(leg)),
				zap.String("correlation_id", correlationID),
				zap.Error(err),
			)
		}
	}()
}
