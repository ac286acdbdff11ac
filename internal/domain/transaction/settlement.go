package transaction

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// settle pays the merchant's settlement amount out after a successful
// payment. An initiation failure is recorded as SETTLEMENT_FAILED and is not
// returned: the payment itself stays applied. Must run under the transaction lock.
func (d *transactionDomain) settle(ctx context.Context, tx *model.Transaction) (*model.Transaction, error) {
	rail := d.cfg.MerchantRail
	adapter, err := d.providers.Get(rail)
	if err != nil {
		return tx, newError(CodeUnsupportedRail, err)
	}

	reference := uuid.NewString()
	correlationID, callErr := Retry(ctx, d.retryPolicy("initiate_settlement"), func(ctx context.Context) (string, error) {
		return adapter.InitiateTransfer(ctx, outbound.TransferRequest{
			Amount:    FormatAmount(tx.SettlementAmount, tx.Currency),
			Currency:  tx.Currency,
			PayeeRef:  d.merchantPayee(tx),
			Leg:       model.LegSettlement,
			Reference: reference,
			SourceRef: tx.UniqueID,
			Note:      "settlement " + tx.TransactionID,
		})
	})
	if callErr == nil && correlationID == "" {
		correlationID = reference
	}

	updated, changed, err := d.mutate(ctx, tx.TransactionID, func(t *model.Transaction) (bool, error) {
		if t.Status != model.TransactionStatusSuccessful || t.SettlementStatus != "" {
			return false, nil
		}
		if err := d.machine.Transition(t, model.TransactionStatusSettlementPending); err != nil {
			return false, err
		}
		if callErr != nil {
			if err := d.machine.Transition(t, model.TransactionStatusSettlementFailed); err != nil {
				return false, err
			}
			t.SettlementStatus = string(model.ProviderStatusFailed)
			t.TransactionError = TransactionErrorFrom(callErr, string(rail))
			return true, nil
		}
		t.SettlementID = correlationID
		t.SettlementStatus = string(model.ProviderStatusPending)
		return true, nil
	})
	if err != nil {
		d.logger.Error("failed to record settlement",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		return tx, err
	}
	if !changed {
		return updated, nil
	}

	if callErr != nil {
		d.logger.Error("settlement initiation failed",
			zap.String("transaction_id", updated.TransactionID),
			zap.String("amount", updated.SettlementAmount.String()),
			zap.Error(callErr),
		)
	} else {
		d.logger.Info("settlement requested",
			zap.String("transaction_id", updated.TransactionID),
			zap.String("correlation_id", correlationID),
			zap.String("amount", updated.SettlementAmount.String()),
		)
	}
	d.publish(ctx, updated)
	if callErr == nil {
		d.notifySandbox(rail, model.LegSettlement, correlationID, updated.SettlementAmount, updated.Currency)
	}

	return updated, nil
}
