package transaction

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
)

func (d *transactionDomain) HandleWebhook(ctx context.Context, req *model.WebhookRequest) (*model.WebhookResult, error) {
	delivery := &model.WebhookDelivery{
		ID:        uuid.New(),
		Rail:      req.Rail,
		Leg:       req.Leg,
		CreatedAt: d.now(),
	}

	result, err := d.handleWebhook(ctx, req, delivery)
	d.finishDelivery(ctx, delivery, result, err)

	label := ""
	if err != nil {
		label = Classify(err).Code
	} else {
		label = string(result.Outcome)
	}
	d.metrics.ObserveWebhook(string(req.Rail), string(req.Leg), label)

	return result, err
}

func (d *transactionDomain) handleWebhook(ctx context.Context, req *model.WebhookRequest, delivery *model.WebhookDelivery) (*model.WebhookResult, error) {
	event, validationErr := d.validator.Validate(req.Payload, WebhookMeta{
		Rail:    req.Rail,
		Leg:     req.Leg,
		Headers: req.Headers,
	})
	if validationErr == nil {
		delivery.CorrelationID = event.CorrelationID
		delivery.ClaimedStatus = event.Status
	}
	d.recordDelivery(ctx, delivery, req.Payload)
	if validationErr != nil {
		return nil, validationErr
	}

	tx, err := d.resolve(ctx, req.Leg, event.CorrelationID)
	if err != nil {
		return nil, err
	}
	delivery.TransactionID = tx.TransactionID

	var result *model.WebhookResult
	err = d.withLock(ctx, tx.TransactionID, func(ctx context.Context) error {
		current, err := d.store.FindByID(ctx, tx.TransactionID)
		if err != nil {
			return internalError("find transaction", err)
		}
		if current == nil {
			return ErrTransactionNotFound
		}
		result, err = d.applyWebhook(ctx, current, req, legEvent(current, req.Leg, event), delivery)
		return err
	})
	return result, err
}

// legEvent rewrites a refund webhook that names a leg by our reference to the
// correlation id the rail returned for it, so reconciliation and the history
// both use the id the leg was recorded under.
func legEvent(tx *model.Transaction, leg model.Leg, event *model.ProviderStatusEvent) *model.ProviderStatusEvent {
	entry, ok := tx.FindRefundLeg(leg, event.CorrelationID)
	if !ok || entry.CorrelationID == event.CorrelationID {
		return event
	}
	translated := *event
	translated.CorrelationID = entry.CorrelationID
	return &translated
}

// resolve finds the transaction a leg's correlation id belongs to.
func (d *transactionDomain) resolve(ctx context.Context, leg model.Leg, correlationID string) (*model.Transaction, error) {
	var (
		tx  *model.Transaction
		err error
	)
	switch leg {
	case model.LegPayment:
		tx, err = d.store.FindByCorrelationID(ctx, correlationID)
	case model.LegSettlement:
		tx, err = d.store.FindBySettlementID(ctx, correlationID)
	case model.LegCustomerRefund:
		tx, err = d.store.FindByCustomerRefundID(ctx, correlationID)
		if err == nil && tx == nil {
			tx, err = d.resolveLink(ctx, leg, correlationID)
		}
	case model.LegMerchantRefund:
		tx, err = d.resolveLink(ctx, leg, correlationID)
		if err == nil && tx == nil {
			tx, err = d.store.FindByMerchantRefundID(ctx, correlationID)
		}
	}
	if err != nil {
		return nil, internalError("resolve transaction", err)
	}
	if tx == nil {
		return nil, ErrTransactionNotFound.WithDetails(map[string]any{
			"correlation_id": correlationID,
			"leg":            string(leg),
		})
	}
	return tx, nil
}

func (d *transactionDomain) resolveLink(ctx context.Context, leg model.Leg, correlationID string) (*model.Transaction, error) {
	link, err := d.links.Get(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if link == nil || link.Leg != leg {
		return nil, nil
	}
	return d.store.FindByID(ctx, link.OriginalTransactionID)
}

// applyWebhook reconciles and applies one webhook. Must run under the transaction lock.
func (d *transactionDomain) applyWebhook(
	ctx context.Context,
	tx *model.Transaction,
	req *model.WebhookRequest,
	event *model.ProviderStatusEvent,
	delivery *model.WebhookDelivery,
) (*model.WebhookResult, error) {
	rail := d.railFor(tx, req.Leg)
	if req.Rail != rail {
		d.logger.Warn("webhook arrived on unexpected rail",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("received_on", string(req.Rail)),
			zap.String("expected", string(rail)),
		)
	}

	reconciled, err := d.reconciler.Reconcile(ctx, event, rail, req.Leg)
	if err != nil {
		return nil, err
	}
	delivery.ReconciledStatus = reconciled.Status

	if !reconciled.Status.IsTerminal() {
		return &model.WebhookResult{
			TransactionID: tx.TransactionID,
			Status:        tx.Status,
			Outcome:       model.OutcomePending,
		}, nil
	}

	var outcome model.Outcome
	updated, _, err := d.mutate(ctx, tx.TransactionID, func(t *model.Transaction) (bool, error) {
		var err error
		outcome, err = d.machine.Apply(t, legUpdate{
			Leg:           req.Leg,
			Rail:          rail,
			CorrelationID: event.CorrelationID,
			ClaimedAmount: event.Amount,
			Result:        reconciled,
			Now:           d.now(),
		})
		return outcome == model.OutcomeApplied, err
	})
	if err != nil {
		return nil, err
	}

	if outcome == model.OutcomeApplied {
		d.logger.Info("transaction status applied",
			zap.String("transaction_id", updated.TransactionID),
			zap.String("leg", string(req.Leg)),
			zap.String("status", string(updated.Status)),
		)
		d.publish(ctx, updated)
	} else {
		d.logger.Info("webhook already processed",
			zap.String("transaction_id", updated.TransactionID),
			zap.String("leg", string(req.Leg)),
			zap.String("correlation_id", event.CorrelationID),
		)
	}

	result := &model.WebhookResult{
		TransactionID: updated.TransactionID,
		Status:        updated.Status,
		Outcome:       outcome,
	}

	latest, err := d.afterWebhook(ctx, updated, req.Leg, event.CorrelationID)
	if latest != nil {
		result.Status = latest.Status
	}
	return result, err
}

// afterWebhook runs the follow-up work a committed leg status triggers. It is
// also run for redeliveries so follow-ups interrupted earlier get retried;
// each follow-up checks its own guard.
func (d *transactionDomain) afterWebhook(ctx context.Context, tx *model.Transaction, leg model.Leg, correlationID string) (*model.Transaction, error) {
	switch leg {
	case model.LegPayment:
		if d.cfg.InstantSettlement && tx.Status == model.TransactionStatusSuccessful && tx.SettlementStatus == "" {
			return d.settle(ctx, tx)
		}

	case model.LegCustomerRefund:
		entry, ok := tx.FindCustomerRefund(correlationID)
		if !ok || !entry.IsTerminal() {
			return tx, nil
		}
		d.dropLinks(ctx, correlationID, entry.Reference)

		if _, started := tx.MerchantRefundFor(entry.CorrelationID); started || entry.Status != model.ProviderStatusSuccessful {
			return tx, nil
		}
		res, err := d.startMerchantRefund(ctx, tx.TransactionID, entry.CorrelationID)
		if err != nil {
			return tx, err
		}
		tx.Status = res.Status

	case model.LegMerchantRefund:
		entry, ok := tx.FindMerchantRefund(correlationID)
		if ok && entry.IsTerminal() {
			d.dropLinks(ctx, correlationID, entry.Reference)
		}
	}
	return tx, nil
}

// recordDelivery archives the raw payload and stores the delivery row.
// Both are audit trails; failures are logged and never block processing.
func (d *transactionDomain) recordDelivery(ctx context.Context, delivery *model.WebhookDelivery, payload []byte) {
	if d.archive != nil {
		key, err := d.archive.Put(ctx, delivery, payload)
		if err != nil {
			d.logger.Warn("failed to archive webhook payload",
				zap.String("delivery_id", delivery.ID.String()),
				zap.Error(err),
			)
		} else {
			delivery.ArchiveKey = key
		}
	}

	if err := d.deliveries.Create(ctx, delivery); err != nil {
		d.logger.Warn("failed to store webhook delivery",
			zap.String("delivery_id", delivery.ID.String()),
			zap.Error(err),
		)
	}
}

func (d *transactionDomain) finishDelivery(ctx context.Context, delivery *model.WebhookDelivery, result *model.WebhookResult, processErr error) {
	if result != nil {
		delivery.Outcome = result.Outcome
	}
	if err := d.deliveries.MarkProcessed(ctx, delivery.ID, delivery, processErr); err != nil {
		d.logger.Warn("failed to mark webhook delivery processed",
			zap.String("delivery_id", delivery.ID.String()),
			zap.Error(err),
		)
	}
}
