package model

import (
	"time"

	"github.com/google/uuid"
)

// WebhookDelivery is an audit row for one inbound provider callback.
type WebhookDelivery struct {
	ID               uuid.UUID           `json:"id" gorm:"type:uuid;primaryKey"`
	Rail             PaymentMethod       `json:"rail" gorm:"type:varchar(16);not null;index"`
	Leg              Leg                 `json:"leg" gorm:"type:varchar(24);not null"`
	CorrelationID    string              `json:"correlation_id,omitempty" gorm:"type:varchar(128);index"`
	TransactionID    string              `json:"transaction_id,omitempty" gorm:"type:varchar(64);index"`
	ClaimedStatus    ProviderStatusValue `json:"claimed_status,omitempty" gorm:"type:varchar(16)"`
	ReconciledStatus ProviderStatusValue `json:"reconciled_status,omitempty" gorm:"type:varchar(16)"`
	Outcome          Outcome             `json:"outcome,omitempty" gorm:"type:varchar(24)"`
	ArchiveKey       string              `json:"archive_key,omitempty"`
	Error            *string             `json:"error,omitempty"`
	ProcessedAt      *time.Time          `json:"processed_at,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// TableName returns the table name for GORM.
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
