package outbound

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/paylink/reconciler/internal/model"
)

// ErrConcurrentModification is returned by UpdateIfVersion when the stored
// version no longer matches the version the caller read.
var ErrConcurrentModification = errors.New("concurrent modification")

// TransactionDatabasePort defines transaction persistence operations.
// Lookups return (nil, nil) when no row matches.
type TransactionDatabasePort interface {
	// Create inserts a new transaction with Version 1.
	Create(ctx context.Context, tx *model.Transaction) error

	// FindByID finds a transaction by its primary key.
	FindByID(ctx context.Context, transactionID string) (*model.Transaction, error)

	// FindByCorrelationID finds a transaction by its payment-leg correlation id
	// (UniqueID or ExternalID).
	FindByCorrelationID(ctx context.Context, correlationID string) (*model.Transaction, error)

	// FindBySettlementID finds a transaction by its settlement transfer id.
	FindBySettlementID(ctx context.Context, settlementID string) (*model.Transaction, error)

	// FindByCustomerRefundID finds a transaction by a customer-refund correlation id.
	FindByCustomerRefundID(ctx context.Context, refundID string) (*model.Transaction, error)

	// FindByMerchantRefundID finds a transaction by a merchant-refund correlation id.
	FindByMerchantRefundID(ctx context.Context, refundID string) (*model.Transaction, error)

	// UpdateIfVersion writes the mutable fields of tx only if the stored version
	// equals expectedVersion, and bumps tx.Version on success.
	// Returns ErrConcurrentModification when the row moved on.
	UpdateIfVersion(ctx context.Context, tx *model.Transaction, expectedVersion int64) error
}

// WebhookDeliveryDatabasePort defines webhook delivery log persistence.
type WebhookDeliveryDatabasePort interface {
	// Create stores a new delivery row.
	Create(ctx context.Context, delivery *model.WebhookDelivery) error

	// MarkProcessed records how a delivery was handled.
	MarkProcessed(ctx context.Context, id uuid.UUID, result *model.WebhookDelivery, processErr error) error
}

// LinkingRecordPort stores temporary records mapping a second-leg correlation
// id to its original transaction.
type LinkingRecordPort interface {
	// Create stores a record. Returns ErrLinkingRecordExists if a live record
	// already uses the same id.
	Create(ctx context.Context, record *model.LinkingRecord) error

	// Get returns the record for a correlation id, or (nil, nil) if absent or expired.
	Get(ctx context.Context, id string) (*model.LinkingRecord, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error
}

// ErrLinkingRecordExists is returned when a linking record id is already in use.
var ErrLinkingRecordExists = errors.New("linking record already exists")

// LockPort serializes work on a single transaction across instances.
type LockPort interface {
	// Acquire blocks until the lock for key is held or ctx ends.
	// The returned function releases the lock.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// ErrLockTimeout is returned when a lock could not be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// WebhookArchivePort stores raw webhook payloads for audit.
type WebhookArchivePort interface {
	// Put stores the payload and returns the object key.
	Put(ctx context.Context, delivery *model.WebhookDelivery, payload []byte) (string, error)
}

// TransferRequest describes an outbound money movement on a rail.
type TransferRequest struct {
	Amount   string
	Currency string
	// PayeeRef is the receiving party: a phone number on mobile rails or a
	// connected account on the card rail.
	PayeeRef string
	Leg      model.Leg
	// Reference is our own id for the transfer. Rails that let the caller
	// choose the correlation id use it verbatim.
	Reference string
	// SourceRef is the payment-leg correlation id the transfer relates to.
	SourceRef string
	Note      string
}

// ProviderAdapterPort is the contract every payment rail implements.
type ProviderAdapterPort interface {
	// Rail returns the rail this adapter serves.
	Rail() model.PaymentMethod

	// InitiatePayment asks the payer to pay and returns the payment correlation id.
	InitiatePayment(ctx context.Context, amount, currency, payerRef, reference string) (string, error)

	// CheckStatus returns the provider's authoritative status for a leg.
	CheckStatus(ctx context.Context, correlationID string, leg model.Leg) (*model.ProviderStatus, error)

	// InitiateTransfer starts an outbound transfer and returns its correlation id.
	InitiateTransfer(ctx context.Context, req TransferRequest) (string, error)

	// NotifyCounterparty makes a simulated rail emit the webhook for a leg.
	// Only used in sandbox mode.
	NotifyCounterparty(ctx context.Context, event *model.ProviderStatusEvent, leg model.Leg) error
}

// ProviderRegistryPort resolves the adapter for a rail.
type ProviderRegistryPort interface {
	// Get returns the adapter for a rail.
	Get(rail model.PaymentMethod) (ProviderAdapterPort, error)

	// Rails lists the registered rails.
	Rails() []model.PaymentMethod
}

// ProviderError is returned by provider adapters for failures the provider
// reported or that happened on the way to it.
type ProviderError struct {
	Rail       model.PaymentMethod
	Operation  string
	StatusCode int
	// Code is the provider's own error or reason code.
	Code       string
	Message    string
	RetryAfter time.Duration
	// Temporary marks transport failures (timeouts, resets) that never
	// produced a provider answer.
	Temporary bool
	Err       error
}

func (e *ProviderError) Error() string {
	msg := string(e.Rail) + " " + e.Operation + ": "
	if e.Code != "" {
		msg += e.Code + ": "
	}
	if e.Message != "" {
		msg += e.Message
	} else if e.Err != nil {
		msg += e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
