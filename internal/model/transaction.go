package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction is the durable record of one payment and everything that
// happened to it afterwards. Rows are never deleted.
type Transaction struct {
	TransactionID    string            `json:"transaction_id" gorm:"type:varchar(64);primaryKey"`
	Status           TransactionStatus `json:"status" gorm:"type:varchar(48);not null;index"`
	Amount           decimal.Decimal   `json:"amount" gorm:"type:numeric(20,4);not null"`
	Currency         string            `json:"currency" gorm:"type:varchar(3);not null"`
	PaymentMethod    PaymentMethod     `json:"payment_method" gorm:"type:varchar(16);not null"`
	MerchantID       string            `json:"merchant_id" gorm:"type:varchar(64);index"`
	MerchantMobileNo string            `json:"merchant_mobile_no,omitempty" gorm:"type:varchar(32)"`
	CustomerPhone    string            `json:"customer_phone,omitempty" gorm:"type:varchar(32)"`
	Description      string            `json:"description,omitempty"`

	// Payment-leg correlation ids.
	UniqueID   string `json:"unique_id" gorm:"type:varchar(128);index"`
	ExternalID string `json:"external_id,omitempty" gorm:"type:varchar(128);index"`

	Fee                decimal.Decimal `json:"fee" gorm:"type:numeric(20,4);not null;default:0"`
	SettlementAmount   decimal.Decimal `json:"settlement_amount" gorm:"type:numeric(20,4);not null;default:0"`
	SettlementID       string          `json:"settlement_id,omitempty" gorm:"type:varchar(128);index"`
	SettlementStatus   string          `json:"settlement_status,omitempty" gorm:"type:varchar(16)"`
	SettlementDate     *time.Time      `json:"settlement_date,omitempty"`
	SettlementResponse datatypes.JSON  `json:"settlement_response,omitempty" gorm:"type:jsonb"`

	CustomerRefundResponse    datatypes.JSONSlice[LegResponse] `json:"customer_refund_response" gorm:"type:jsonb"`
	TotalCustomerRefundAmount decimal.Decimal                  `json:"total_customer_refund_amount" gorm:"type:numeric(20,4);not null;default:0"`
	CustomerRefundID          string                           `json:"customer_refund_id,omitempty" gorm:"type:varchar(128);index"`

	MerchantRefundResponse    datatypes.JSONSlice[LegResponse] `json:"merchant_refund_response" gorm:"type:jsonb"`
	TotalMerchantRefundAmount decimal.Decimal                  `json:"total_merchant_refund_amount" gorm:"type:numeric(20,4);not null;default:0"`
	MerchantRefundID          string                           `json:"merchant_refund_id,omitempty" gorm:"type:varchar(128);index"`

	TransactionError *TransactionError `json:"transaction_error,omitempty" gorm:"type:jsonb;serializer:json"`

	Version   int64     `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Transaction) TableName() string {
	return "transactions"
}

// RefundableAmount returns how much can still be refunded to the customer.
func (t *Transaction) RefundableAmount() decimal.Decimal {
	return t.Amount.Sub(t.TotalCustomerRefundAmount)
}

// FindCustomerRefund returns the latest customer-refund history entry whose
// correlation id or reference is id.
func (t *Transaction) FindCustomerRefund(id string) (LegResponse, bool) {
	return findLegResponse(t.CustomerRefundResponse, id)
}

// FindMerchantRefund returns the latest merchant-refund history entry whose
// correlation id or reference is id.
func (t *Transaction) FindMerchantRefund(id string) (LegResponse, bool) {
	return findLegResponse(t.MerchantRefundResponse, id)
}

// FindRefundLeg looks id up in the history of a refund leg.
func (t *Transaction) FindRefundLeg(leg Leg, id string) (LegResponse, bool) {
	switch leg {
	case LegCustomerRefund:
		return t.FindCustomerRefund(id)
	case LegMerchantRefund:
		return t.FindMerchantRefund(id)
	}
	return LegResponse{}, false
}

// MerchantRefundFor returns the latest entry of the merchant refund started
// for the customer refund customerRefundID.
func (t *Transaction) MerchantRefundFor(customerRefundID string) (LegResponse, bool) {
	for i := len(t.MerchantRefundResponse) - 1; i >= 0; i-- {
		if t.MerchantRefundResponse[i].SourceCorrelationID == customerRefundID {
			return t.MerchantRefundResponse[i], true
		}
	}
	return LegResponse{}, false
}

// AwaitingMerchantRefund returns the successful customer refunds that have no
// merchant refund yet, oldest first.
func (t *Transaction) AwaitingMerchantRefund() []LegResponse {
	var out []LegResponse
	for _, refund := range latestLegs(t.CustomerRefundResponse) {
		if refund.Status != ProviderStatusSuccessful {
			continue
		}
		if _, started := t.MerchantRefundFor(refund.CorrelationID); started {
			continue
		}
		out = append(out, refund)
	}
	return out
}

func findLegResponse(history []LegResponse, id string) (LegResponse, bool) {
	if id == "" {
		return LegResponse{}, false
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].CorrelationID == id || history[i].Reference == id {
			return history[i], true
		}
	}
	return LegResponse{}, false
}

// latestLegs returns the newest entry of every leg in history, in the order
// the legs were first recorded.
func latestLegs(history []LegResponse) []LegResponse {
	index := make(map[string]int, len(history))
	var out []LegResponse
	for _, entry := range history {
		if i, ok := index[entry.CorrelationID]; ok {
			out[i] = entry
			continue
		}
		index[entry.CorrelationID] = len(out)
		out = append(out, entry)
	}
	return out
}

// LegResponse is one entry in a refund leg's append-only history.
type LegResponse struct {
	CorrelationID          string              `json:"correlation_id"`
	Reference              string              `json:"reference,omitempty"`
	Status                 ProviderStatusValue `json:"status"`
	Amount                 decimal.Decimal     `json:"amount"`
	Currency               string              `json:"currency"`
	Rail                   PaymentMethod       `json:"rail"`
	ReasonCode             string              `json:"reason_code,omitempty"`
	FinancialTransactionID string              `json:"financial_transaction_id,omitempty"`
	Reason                 string              `json:"reason,omitempty"`
	RecordedAt             time.Time           `json:"recorded_at"`
	// SourceCorrelationID links a merchant refund to the customer refund it follows.
	SourceCorrelationID    string              `json:"source_correlation_id,omitempty"`
}

// IsTerminal returns true when the entry records a final provider answer.
func (r LegResponse) IsTerminal() bool {
	return r.Status.IsTerminal()
}

// TransactionError is the last mapped failure recorded on a transaction.
type TransactionError struct {
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
	ErrorType    string `json:"ErrorType"`
	ErrorSource  string `json:"ErrorSource"`
}

// LinkingRecord maps a second-leg correlation id back to the transaction that
// caused it. It is short-lived and never treated as a transaction.
type LinkingRecord struct {
	ID                    string    `json:"id"`
	OriginalTransactionID string    `json:"original_transaction_id"`
	Leg                   Leg       `json:"leg"`
	CreatedAt             time.Time `json:"created_at"`
}

// ProviderStatus is a provider's authoritative answer for one leg.
type ProviderStatus struct {
	CorrelationID          string
	Status                 ProviderStatusValue
	Amount                 decimal.Decimal
	Currency               string
	ReasonCode             string
	Reason                 string
	FinancialTransactionID string
	Raw                    []byte
}

// ProviderStatusEvent is a validated inbound provider notification.
type ProviderStatusEvent struct {
	CorrelationID    string
	Amount           decimal.Decimal
	Currency         string
	Status           ProviderStatusValue
	ReasonCode       string
	ProviderMetadata map[string]string
}

// TransactionEvent is published after every committed status change.
type TransactionEvent struct {
	TransactionID    string            `json:"transactionId"`
	Status           TransactionStatus `json:"status"`
	Type             EventType         `json:"type"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	TransactionError *TransactionError `json:"TransactionError,omitempty"`
}

// NewTransactionEvent builds the outbound event for the current state of tx.
// The recorded TransactionError is only attached while tx is in a failure status.
func NewTransactionEvent(tx *Transaction) *TransactionEvent {
	event := &TransactionEvent{
		TransactionID: tx.TransactionID,
		Status:        tx.Status,
		Type:          EventTypeFor(tx.Status),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
	}
	if tx.Status.IsFailure() {
		event.TransactionError = tx.TransactionError
	}
	return event
}

// --- Request/Response DTOs ---

// CreatePaymentRequest represents a request to collect a payment.
type CreatePaymentRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency" binding:"required,len=3"`
	PaymentMethod    PaymentMethod   `json:"payment_method" binding:"required,oneof=CARD MOBILE_A MOBILE_B"`
	MerchantID       string          `json:"merchant_id" binding:"required"`
	MerchantMobileNo string          `json:"merchant_mobile_no"`
	CustomerPhone    string          `json:"customer_phone"`
	PayerRef         string          `json:"payer_ref"`
	Description      string          `json:"description"`
}

// RefundRequest represents a customer refund request.
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// WebhookRequest carries one raw provider callback into the domain.
type WebhookRequest struct {
	Rail    PaymentMethod
	Leg     Leg
	Payload []byte
	Headers map[string]string
}

// WebhookResult is the explicit result of handling a webhook.
type WebhookResult struct {
	TransactionID string            `json:"transaction_id,omitempty"`
	Status        TransactionStatus `json:"status,omitempty"`
	Outcome       Outcome           `json:"outcome"`
}

// CascadeResult is the result of a merchant-refund initiation.
type CascadeResult struct {
	TransactionID    string            `json:"transaction_id"`
	Status           TransactionStatus `json:"status"`
	MerchantRefundID string            `json:"merchant_refund_id,omitempty"`
	Outcome          Outcome           `json:"outcome"`
}
