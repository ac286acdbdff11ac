package transaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paylink/reconciler/internal/model"
)

func newTestMachine(t *testing.T) *StateMachine {
	t.Helper()
	fees, err := NewFeeCalculator(DefaultFeePercentage)
	require.NoError(t, err)
	return NewStateMachine(fees)
}

func update(leg model.Leg, correlationID string, status model.ProviderStatusValue) legUpdate {
	return legUpdate{
		Leg:           leg,
		Rail:          model.PaymentMethodMobileA,
		CorrelationID: correlationID,
		Result:        &ReconciledStatus{Status: status},
		Now:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStateMachine_Transition(t *testing.T) {
	m := newTestMachine(t)

	tx := pendingTx("tx-1", "1000")
	require.NoError(t, m.Transition(tx, model.TransactionStatusSuccessful))
	assert.Equal(t, model.TransactionStatusSuccessful, tx.Status)

	err := m.Transition(tx, model.TransactionStatusPaymentRequestCreated)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	assert.Equal(t, model.TransactionStatusSuccessful, tx.Status)

	failed := pendingTx("tx-2", "1000")
	failed.Status = model.TransactionStatusFailed
	for _, target := range []model.TransactionStatus{
		model.TransactionStatusSuccessful,
		model.TransactionStatusCustomerRefundRequestCreated,
		model.TransactionStatusSettlementPending,
	} {
		assert.Error(t, m.Transition(failed, target), "FAILED -> %s", target)
	}

	settling := paidTx("tx-3", "1000")
	settling.Status = model.TransactionStatusSettlementPending
	assert.ErrorIs(t, m.Transition(settling, model.TransactionStatusCustomerRefundRequestCreated), ErrInvalidStatusTransition)
}

func TestStateMachine_RefundPhaseTransitions(t *testing.T) {
	m := newTestMachine(t)
	refundStatuses := []model.TransactionStatus{
		model.TransactionStatusCustomerRefundRequestCreated,
		model.TransactionStatusCustomerRefundSuccessful,
		model.TransactionStatusCustomerRefundFailed,
		model.TransactionStatusMerchantRefundRequestCreated,
		model.TransactionStatusMerchantRefundSuccessful,
		model.TransactionStatusMerchantRefundFailed,
	}

	for _, from := range refundStatuses {
		for _, to := range refundStatuses {
			tx := paidTx("tx-1", "1000")
			tx.Status = from
			assert.NoError(t, m.Transition(tx, to), "%s -> %s", from, to)
		}
		tx := paidTx("tx-1", "1000")
		tx.Status = from
		assert.Error(t, m.Transition(tx, model.TransactionStatusSettlementPending), "%s -> SETTLEMENT_PENDING", from)
		assert.Error(t, m.Transition(tx, model.TransactionStatusSuccessful), "%s -> SUCCESSFUL", from)
	}
}

func TestStateMachine_Apply(t *testing.T) {
	m := newTestMachine(t)

	t.Run("pending answer is not applied", func(t *testing.T) {
		tx := pendingTx("tx-1", "1000")
		outcome, err := m.Apply(tx, update(model.LegPayment, "tx-1", model.ProviderStatusPending))
		require.NoError(t, err)
		assert.Equal(t, model.OutcomePending, outcome)
		assert.Equal(t, model.TransactionStatusPaymentRequestCreated, tx.Status)
	})

	t.Run("late payment success after refund is already processed", func(t *testing.T) {
		tx := paidTx("tx-1", "1000")
		tx.Status = model.TransactionStatusCustomerRefundSuccessful
		outcome, err := m.Apply(tx, update(model.LegPayment, "tx-1", model.ProviderStatusSuccessful))
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeAlreadyProcessed, outcome)
		assert.Equal(t, model.TransactionStatusCustomerRefundSuccessful, tx.Status)
	})

	t.Run("settlement failure records error", func(t *testing.T) {
		tx := paidTx("tx-1", "1000")
		tx.Status = model.TransactionStatusSettlementPending
		tx.SettlementID = "st-1"
		tx.SettlementStatus = "PENDING"
		u := update(model.LegSettlement, "st-1", model.ProviderStatusFailed)
		u.Result.ReasonCode = "PAYEE_NOT_FOUND"

		outcome, err := m.Apply(tx, u)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeApplied, outcome)
		assert.Equal(t, model.TransactionStatusSettlementFailed, tx.Status)
		assert.Equal(t, "FAILED", tx.SettlementStatus)
		assert.Nil(t, tx.SettlementDate)
		require.NotNil(t, tx.TransactionError)
		assert.Equal(t, "PAYEE_NOT_FOUND", tx.TransactionError.ErrorCode)

		outcome, err = m.Apply(tx, u)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeAlreadyProcessed, outcome)
	})

	t.Run("customer refund carries requested amount", func(t *testing.T) {
		tx := paidTx("tx-1", "2000")
		tx.Status = model.TransactionStatusCustomerRefundRequestCreated
		tx.TotalCustomerRefundAmount = dec("700")
		tx.CustomerRefundID = "cr-1"
		tx.CustomerRefundResponse = append(tx.CustomerRefundResponse, model.LegResponse{
			CorrelationID: "cr-1",
			Reference:     "ref-1",
			Status:        model.ProviderStatusPending,
			Amount:        dec("700"),
			Rail:          model.PaymentMethodMobileA,
		})
		u := update(model.LegCustomerRefund, "cr-1", model.ProviderStatusSuccessful)
		u.ClaimedAmount = dec("1")

		outcome, err := m.Apply(tx, u)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeApplied, outcome)
		require.Len(t, tx.CustomerRefundResponse, 2)
		last := tx.CustomerRefundResponse[1]
		assert.True(t, dec("700").Equal(last.Amount))
		assert.Equal(t, "ref-1", last.Reference)
		assert.True(t, dec("700").Equal(tx.TotalCustomerRefundAmount))

		outcome, err = m.Apply(tx, u)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeAlreadyProcessed, outcome)
		assert.Len(t, tx.CustomerRefundResponse, 2)
	})

	t.Run("merchant refund success adds to total", func(t *testing.T) {
		tx := paidTx("tx-1", "2000")
		tx.Status = model.TransactionStatusMerchantRefundRequestCreated
		tx.MerchantRefundID = "mr-1"
		tx.MerchantRefundResponse = append(tx.MerchantRefundResponse, model.LegResponse{
			CorrelationID: "mr-1",
			Status:        model.ProviderStatusPending,
			Amount:        dec("488"),
		})

		outcome, err := m.Apply(tx, update(model.LegMerchantRefund, "mr-1", model.ProviderStatusSuccessful))
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeApplied, outcome)
		assert.Equal(t, model.TransactionStatusMerchantRefundSuccessful, tx.Status)
		assert.True(t, dec("488").Equal(tx.TotalMerchantRefundAmount))
	})

	t.Run("interleaved refund legs resolve once each", func(t *testing.T) {
		tx := paidTx("tx-1", "2000")
		tx.Status = model.TransactionStatusCustomerRefundRequestCreated
		tx.TotalCustomerRefundAmount = dec("1500")
		tx.CustomerRefundID = "cr-2"
		tx.CustomerRefundResponse = append(tx.CustomerRefundResponse,
			model.LegResponse{CorrelationID: "cr-1", Reference: "ref-1", Status: model.ProviderStatusPending, Amount: dec("500")},
			model.LegResponse{CorrelationID: "cr-2", Reference: "ref-2", Status: model.ProviderStatusPending, Amount: dec("1000")},
		)

		outcome, err := m.Apply(tx, update(model.LegCustomerRefund, "cr-2", model.ProviderStatusSuccessful))
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeApplied, outcome)

		failed := update(model.LegCustomerRefund, "cr-1", model.ProviderStatusFailed)
		outcome, err = m.Apply(tx, failed)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeApplied, outcome)
		assert.Equal(t, model.TransactionStatusCustomerRefundFailed, tx.Status)
		assert.True(t, dec("1000").Equal(tx.TotalCustomerRefundAmount))

		outcome, err = m.Apply(tx, failed)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeAlreadyProcessed, outcome)
		assert.True(t, dec("1000").Equal(tx.TotalCustomerRefundAmount))
		assert.Len(t, tx.CustomerRefundResponse, 4)

		awaiting := tx.AwaitingMerchantRefund()
		require.Len(t, awaiting, 1)
		assert.Equal(t, "cr-2", awaiting[0].CorrelationID)
	})

	t.Run("merchant refund keeps its customer refund link", func(t *testing.T) {
		tx := paidTx("tx-1", "2000")
		tx.Status = model.TransactionStatusMerchantRefundRequestCreated
		tx.MerchantRefundResponse = append(tx.MerchantRefundResponse, model.LegResponse{
			CorrelationID:       "mr-1",
			Status:              model.ProviderStatusPending,
			Amount:              dec("488"),
			SourceCorrelationID: "cr-1",
		})

		u := update(model.LegMerchantRefund, "mr-1", model.ProviderStatusFailed)
		u.Result.ReasonCode = "PAYEE_NOT_FOUND"
		outcome, err := m.Apply(tx, u)
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeApplied, outcome)
		assert.True(t, tx.TotalMerchantRefundAmount.IsZero())

		entry, ok := tx.MerchantRefundFor("cr-1")
		require.True(t, ok)
		assert.Equal(t, model.ProviderStatusFailed, entry.Status)
	})
}
