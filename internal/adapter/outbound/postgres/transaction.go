package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
	"gorm.io/gorm"
)

// transactionAdapter implements outbound.TransactionDatabasePort.
type transactionAdapter struct {
	db *gorm.DB
}

// NewTransactionAdapter creates a new transaction database adapter.
func NewTransactionAdapter(db *gorm.DB) outbound.TransactionDatabasePort {
	return &transactionAdapter{db: db}
}

func (a *transactionAdapter) Create(ctx context.Context, tx *model.Transaction) error {
	tx.Version = 1
	if err := a.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (a *transactionAdapter) FindByID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	var tx model.Transaction
	err := a.db.WithContext(ctx).First(&tx, "transaction_id = ?", transactionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction by id: %w", err)
	}
	return &tx, nil
}

func (a *transactionAdapter) FindByCorrelationID(ctx context.Context, correlationID string) (*model.Transaction, error) {
	return a.findOne(ctx, "find transaction by correlation id",
		"unique_id = ? OR external_id = ?", correlationID, correlationID)
}

func (a *transactionAdapter) FindBySettlementID(ctx context.Context, settlementID string) (*model.Transaction, error) {
	return a.findOne(ctx, "find transaction by settlement id", "settlement_id = ?", settlementID)
}

func (a *transactionAdapter) FindByCustomerRefundID(ctx context.Context, refundID string) (*model.Transaction, error) {
	byCorrelation, byReference, err := historyFilters(refundID)
	if err != nil {
		return nil, err
	}
	return a.findOne(ctx, "find transaction by customer refund id",
		"customer_refund_id = ? OR customer_refund_response @> ?::jsonb OR customer_refund_response @> ?::jsonb",
		refundID, byCorrelation, byReference)
}

func (a *transactionAdapter) FindByMerchantRefundID(ctx context.Context, refundID string) (*model.Transaction, error) {
	byCorrelation, byReference, err := historyFilters(refundID)
	if err != nil {
		return nil, err
	}
	return a.findOne(ctx, "find transaction by merchant refund id",
		"merchant_refund_id = ? OR merchant_refund_response @> ?::jsonb OR merchant_refund_response @> ?::jsonb",
		refundID, byCorrelation, byReference)
}

// UpdateIfVersion writes every mutable column guarded by the version the
// caller read. Zero values are written too, so cleared fields stay cleared.
func (a *transactionAdapter) UpdateIfVersion(ctx context.Context, tx *model.Transaction, expectedVersion int64) error {
	tx.Version = expectedVersion + 1
	result := a.db.WithContext(ctx).
		Model(tx).
		Where("version = ?", expectedVersion).
		Select("*").
		Omit("transaction_id", "created_at").
		Updates(tx)
	if result.Error != nil {
		tx.Version = expectedVersion
		return fmt.Errorf("update transaction %s: %w", tx.TransactionID, result.Error)
	}
	if result.RowsAffected == 0 {
		tx.Version = expectedVersion
		return outbound.ErrConcurrentModification
	}
	return nil
}

// findOne returns the most recently updated match. Correlation ids are
// provider-unique, so more than one match only happens with bad data.
func (a *transactionAdapter) findOne(ctx context.Context, op, query string, args ...interface{}) (*model.Transaction, error) {
	var tx model.Transaction
	err := a.db.WithContext(ctx).
		Where(query, args...).
		Order("updated_at DESC").
		Take(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &tx, nil
}

// historyFilters builds the jsonb containment operands matching a refund
// history entry by correlation id and by our own reference.
func historyFilters(id string) (string, string, error) {
	byCorrelation, err := json.Marshal([]map[string]string{{"correlation_id": id}})
	if err != nil {
		return "", "", fmt.Errorf("encode history filter: %w", err)
	}
	byReference, err := json.Marshal([]map[string]string{{"reference": id}})
	if err != nil {
		return "", "", fmt.Errorf("encode history filter: %w", err)
	}
	return string(byCorrelation), string(byReference), nil
}

// Compile-time check
var _ outbound.TransactionDatabasePort = (*transactionAdapter)(nil)
