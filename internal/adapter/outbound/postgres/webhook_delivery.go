package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
	"gorm.io/gorm"
)

// webhookDeliveryAdapter implements outbound.WebhookDeliveryDatabasePort.
type webhookDeliveryAdapter struct {
	db *gorm.DB
}

// NewWebhookDeliveryAdapter creates a new webhook delivery database adapter.
func NewWebhookDeliveryAdapter(db *gorm.DB) outbound.WebhookDeliveryDatabasePort {
	return &webhookDeliveryAdapter{db: db}
}

func (a *webhookDeliveryAdapter) Create(ctx context.Context, delivery *model.WebhookDelivery) error {
	if delivery.ID == uuid.Nil {
		delivery.ID = uuid.New()
	}
	if err := a.db.WithContext(ctx).Create(delivery).Error; err != nil {
		return fmt.Errorf("create webhook delivery: %w", err)
	}
	return nil
}

func (a *webhookDeliveryAdapter) MarkProcessed(ctx context.Context, id uuid.UUID, result *model.WebhookDelivery, processErr error) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at": now,
	}
	if result != nil {
		updates["outcome"] = result.Outcome
		updates["reconciled_status"] = result.ReconciledStatus
		updates["transaction_id"] = result.TransactionID
		updates["correlation_id"] = result.CorrelationID
		updates["claimed_status"] = result.ClaimedStatus
		if result.ArchiveKey != "" {
			updates["archive_key"] = result.ArchiveKey
		}
	}
	if processErr != nil {
		updates["error"] = processErr.Error()
	}
	err := a.db.WithContext(ctx).
		Model(&model.WebhookDelivery{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("mark webhook delivery processed: %w", err)
	}
	return nil
}

// Compile-time check
var _ outbound.WebhookDeliveryDatabasePort = (*webhookDeliveryAdapter)(nil)
