package transaction

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

func (d *transactionDomain) RequestCustomerRefund(ctx context.Context, transactionID string, req *model.RefundRequest) (*model.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidRefundAmount
	}

	var result *model.Transaction
	err := d.withLock(ctx, transactionID, func(ctx context.Context) error {
		tx, err := d.store.FindByID(ctx, transactionID)
		if err != nil {
			return internalError("find transaction", err)
		}
		if tx == nil {
			return ErrTransactionNotFound
		}
		if err := checkRefund(tx, req.Amount); err != nil {
			return err
		}

		adapter, err := d.providers.Get(tx.PaymentMethod)
		if err != nil {
			return newError(CodeUnsupportedRail, err)
		}

		reference := uuid.NewString()
		if err := d.links.Create(ctx, &model.LinkingRecord{
			ID:                    reference,
			OriginalTransactionID: tx.TransactionID,
			Leg:                   model.LegCustomerRefund,
			CreatedAt:             d.now(),
		}); err != nil {
			return internalError("create linking record", err)
		}

		correlationID, callErr := Retry(ctx, d.retryPolicy("initiate_refund"), func(ctx context.Context) (string, error) {
			return adapter.InitiateTransfer(ctx, outbound.TransferRequest{
				Amount:    FormatAmount(req.Amount, tx.Currency),
				Currency:  tx.Currency,
				PayeeRef:  tx.CustomerPhone,
				Leg:       model.LegCustomerRefund,
				Reference: reference,
				SourceRef: tx.UniqueID,
				Note:      req.Reason,
			})
		})
		if callErr != nil {
			d.dropLinks(ctx, reference)
			d.logger.Error("customer refund initiation failed",
				zap.String("transaction_id", tx.TransactionID),
				zap.String("amount", req.Amount.String()),
				zap.Error(callErr),
			)
			de := newError(CodeTransferInitiationFailed, callErr)
			de.Details = Classify(callErr).Details
			return de
		}
		if correlationID == "" {
			correlationID = reference
		}

		updated, _, err := d.mutate(ctx, tx.TransactionID, func(t *model.Transaction) (bool, error) {
			if err := checkRefund(t, req.Amount); err != nil {
				return false, err
			}
			if err := d.machine.Transition(t, model.TransactionStatusCustomerRefundRequestCreated); err != nil {
				return false, err
			}
			t.TotalCustomerRefundAmount = t.TotalCustomerRefundAmount.Add(req.Amount)
			t.CustomerRefundID = correlationID
			t.CustomerRefundResponse = append(t.CustomerRefundResponse, model.LegResponse{
				CorrelationID: correlationID,
				Reference:     reference,
				Status:        model.ProviderStatusPending,
				Amount:        req.Amount,
				Currency:      t.Currency,
				Rail:          t.PaymentMethod,
				Reason:        req.Reason,
				RecordedAt:    d.now(),
			})
			return true, nil
		})
		if err != nil {
			d.logger.Error("customer refund initiated but not recorded",
				zap.String("transaction_id", tx.TransactionID),
				zap.String("correlation_id", correlationID),
				zap.Error(err),
			)
			return err
		}

		d.logger.Info("customer refund requested",
			zap.String("transaction_id", updated.TransactionID),
			zap.String("correlation_id", correlationID),
			zap.String("amount", req.Amount.String()),
			zap.String("total_refunded", updated.TotalCustomerRefundAmount.String()),
		)
		d.publish(ctx, updated)
		d.notifySandbox(updated.PaymentMethod, model.LegCustomerRefund, correlationID, req.Amount, updated.Currency)

		result = updated
		return nil
	})
	return result, err
}

// checkRefund enforces the refund ceiling and the transition table for a new
// refund of amount on tx.
func checkRefund(tx *model.Transaction, amount decimal.Decimal) error {
	if !amount.IsPositive() || !FitsMinorUnit(amount, tx.Currency) {
		return ErrInvalidRefundAmount
	}
	if tx.TotalCustomerRefundAmount.Add(amount).GreaterThan(tx.Amount) {
		return ErrRefundAmountExceedsOriginal.WithDetails(map[string]any{
			"requested":        amount.String(),
			"already_refunded": tx.TotalCustomerRefundAmount.String(),
			"refundable":       tx.RefundableAmount().String(),
			"original":         tx.Amount.String(),
		})
	}
	if !tx.Status.CanTransitionTo(model.TransactionStatusCustomerRefundRequestCreated) {
		return invalidTransition(tx.Status, model.TransactionStatusCustomerRefundRequestCreated)
	}
	return nil
}
