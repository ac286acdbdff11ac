package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionEvent_TransactionError(t *testing.T) {
	tx := &Transaction{
		TransactionID: "tx-1",
		Status:        TransactionStatusSettlementFailed,
		Amount:        decimal.RequireFromString("1000"),
		Currency:      "UGX",
		TransactionError: &TransactionError{
			ErrorCode:    "PAYEE_NOT_FOUND",
			ErrorMessage: "payee not found",
		},
	}

	event := NewTransactionEvent(tx)
	require.NotNil(t, event.TransactionError)
	assert.Equal(t, "PAYEE_NOT_FOUND", event.TransactionError.ErrorCode)

	for _, status := range []TransactionStatus{
		TransactionStatusCustomerRefundRequestCreated,
		TransactionStatusCustomerRefundSuccessful,
		TransactionStatusMerchantRefundSuccessful,
	} {
		tx.Status = status
		event = NewTransactionEvent(tx)
		assert.Nil(t, event.TransactionError, "%s event must not carry an earlier error", status)
	}

	tx.Status = TransactionStatusCustomerRefundFailed
	assert.NotNil(t, NewTransactionEvent(tx).TransactionError)
}

func TestTransaction_FindRefundLeg(t *testing.T) {
	tx := &Transaction{
		CustomerRefundResponse: []LegResponse{
			{CorrelationID: "re_1", Reference: "ref-1", Status: ProviderStatusPending},
			{CorrelationID: "re_2", Reference: "ref-2", Status: ProviderStatusPending},
			{CorrelationID: "re_1", Reference: "ref-1", Status: ProviderStatusSuccessful},
		},
	}

	entry, ok := tx.FindRefundLeg(LegCustomerRefund, "ref-1")
	require.True(t, ok)
	assert.Equal(t, "re_1", entry.CorrelationID)
	assert.Equal(t, ProviderStatusSuccessful, entry.Status)

	entry, ok = tx.FindRefundLeg(LegCustomerRefund, "re_2")
	require.True(t, ok)
	assert.Equal(t, ProviderStatusPending, entry.Status)

	_, ok = tx.FindRefundLeg(LegMerchantRefund, "re_1")
	assert.False(t, ok)
	_, ok = tx.FindRefundLeg(LegCustomerRefund, "")
	assert.False(t, ok)

	awaiting := tx.AwaitingMerchantRefund()
	require.Len(t, awaiting, 1)
	assert.Equal(t, "re_1", awaiting[0].CorrelationID)

	tx.MerchantRefundResponse = []LegResponse{{CorrelationID: "mr-1", SourceCorrelationID: "re_1", Status: ProviderStatusPending}}
	assert.Empty(t, tx.AwaitingMerchantRefund())
}
