package transaction

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

func (d *transactionDomain) InitiateMerchantRefund(ctx context.Context, transactionID string) (*model.CascadeResult, error) {
	var result *model.CascadeResult
	err := d.withLock(ctx, transactionID, func(ctx context.Context) error {
		var err error
		result, err = d.startMerchantRefund(ctx, transactionID, "")
		return err
	})
	return result, err
}

// startMerchantRefund moves the merchant's share of the successful customer
// refund customerRefundID. An empty id picks the oldest successful customer
// refund that has no merchant refund yet. The linking record is written
// before the transfer starts and the transaction only moves once the transfer
// was accepted. Must run under the transaction lock.
func (d *transactionDomain) startMerchantRefund(ctx context.Context, transactionID, customerRefundID string) (*model.CascadeResult, error) {
	tx, err := d.store.FindByID(ctx, transactionID)
	if err != nil {
		return nil, internalError("find transaction", err)
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}

	if !tx.Status.IsRefundPhase() {
		return nil, ErrMerchantRefundNotAllowed.WithDetails(map[string]any{"status": string(tx.Status)})
	}
	refund, outcome, err := merchantRefundSource(tx, customerRefundID)
	if err != nil {
		return nil, err
	}
	if outcome != "" {
		return cascadeResult(tx, outcome), nil
	}
	if !tx.Status.CanTransitionTo(model.TransactionStatusMerchantRefundRequestCreated) {
		return nil, invalidTransition(tx.Status, model.TransactionStatusMerchantRefundRequestCreated)
	}

	share, err := d.fees.Calculate(refund.Amount, tx.Currency)
	if err != nil {
		return nil, internalError("calculate merchant share", err)
	}

	rail := d.cfg.MerchantRail
	adapter, err := d.providers.Get(rail)
	if err != nil {
		return nil, newError(CodeUnsupportedRail, err)
	}

	reference := uuid.NewString()
	if err := d.links.Create(ctx, &model.LinkingRecord{
		ID:                    reference,
		OriginalTransactionID: tx.TransactionID,
		Leg:                   model.LegMerchantRefund,
		CreatedAt:             d.now(),
	}); err != nil {
		return nil, internalError("create linking record", err)
	}

	correlationID, callErr := Retry(ctx, d.retryPolicy("initiate_merchant_refund"), func(ctx context.Context) (string, error) {
		return adapter.InitiateTransfer(ctx, outbound.TransferRequest{
			Amount:    FormatAmount(share.Settlement, tx.Currency),
			Currency:  tx.Currency,
			PayeeRef:  d.merchantPayee(tx),
			Leg:       model.LegMerchantRefund,
			Reference: reference,
			SourceRef: refund.CorrelationID,
			Note:      "merchant refund " + tx.TransactionID,
		})
	})
	if callErr != nil {
		d.dropLinks(ctx, reference)
		d.logger.Error("merchant refund initiation failed",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("status", string(tx.Status)),
			zap.Error(callErr),
		)
		de := newError(CodeTransferInitiationFailed, callErr)
		de.Details = Classify(callErr).Details
		return nil, de
	}
	if correlationID == "" {
		correlationID = reference
	}

	updated, changed, err := d.mutate(ctx, tx.TransactionID, func(t *model.Transaction) (bool, error) {
		if _, started := t.MerchantRefundFor(refund.CorrelationID); started {
			return false, nil
		}
		if err := d.machine.Transition(t, model.TransactionStatusMerchantRefundRequestCreated); err != nil {
			return false, err
		}
		t.MerchantRefundID = correlationID
		t.MerchantRefundResponse = append(t.MerchantRefundResponse, model.LegResponse{
			CorrelationID:       correlationID,
			Reference:           reference,
			Status:              model.ProviderStatusPending,
			Amount:              share.Settlement,
			Currency:            t.Currency,
			Rail:                rail,
			RecordedAt:          d.now(),
			SourceCorrelationID: refund.CorrelationID,
		})
		return true, nil
	})
	if err != nil {
		d.logger.Error("merchant refund initiated but not recorded",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		return nil, err
	}
	if !changed {
		d.logger.Error("merchant refund already recorded, transfer left unlinked",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("correlation_id", correlationID),
		)
		return cascadeResult(updated, model.OutcomeAlreadyProcessed), nil
	}

	d.logger.Info("merchant refund requested",
		zap.String("transaction_id", updated.TransactionID),
		zap.String("correlation_id", correlationID),
		zap.String("customer_refund_id", refund.CorrelationID),
		zap.String("amount", share.Settlement.String()),
	)
	d.publish(ctx, updated)
	d.notifySandbox(rail, model.LegMerchantRefund, correlationID, share.Settlement, updated.Currency)

	return cascadeResult(updated, model.OutcomeApplied), nil
}

// merchantRefundSource picks the customer refund a merchant refund follows.
// A non-empty outcome means there is nothing left to start.
func merchantRefundSource(tx *model.Transaction, customerRefundID string) (model.LegResponse, model.Outcome, error) {
	if customerRefundID == "" {
		awaiting := tx.AwaitingMerchantRefund()
		if len(awaiting) > 0 {
			return awaiting[0], "", nil
		}
		if tx.Status.IsMerchantRefund() || len(tx.MerchantRefundResponse) > 0 {
			return model.LegResponse{}, model.OutcomeAlreadyProcessed, nil
		}
		return model.LegResponse{}, "", ErrMerchantRefundNotAllowed.WithDetails(map[string]any{
			"status": string(tx.Status),
		})
	}

	if _, started := tx.MerchantRefundFor(customerRefundID); started {
		return model.LegResponse{}, model.OutcomeAlreadyProcessed, nil
	}
	refund, ok := tx.FindCustomerRefund(customerRefundID)
	if !ok || refund.Status != model.ProviderStatusSuccessful {
		return model.LegResponse{}, "", ErrMerchantRefundNotAllowed.WithDetails(map[string]any{
			"customer_refund_id": customerRefundID,
		})
	}
	return refund, "", nil
}

func cascadeResult(tx *model.Transaction, outcome model.Outcome) *model.CascadeResult {
	return &model.CascadeResult{
		TransactionID:    tx.TransactionID,
		Status:           tx.Status,
		MerchantRefundID: tx.MerchantRefundID,
		Outcome:          outcome,
	}
}
