package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
)

type MockMessagePort struct {
	mock.Mock
}

func (m *MockMessagePort) Publish(ctx context.Context, channel string, message []byte) error {
	args := m.Called(ctx, channel, message)
	return args.Error(0)
}

func paymentEvent() *model.TransactionEvent {
	return &model.TransactionEvent{
		TransactionID: "tx-1",
		Status:        model.TransactionStatusSuccessful,
		Type:          model.EventTypePayment,
		Amount:        decimal.RequireFromString("1000"),
		Currency:      "UGX",
	}
}

func TestBus_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("routes by type", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		var payments, settlements int
		bus.Register(NewHandlerFunc([]model.EventType{model.EventTypePayment}, func(context.Context, Envelope) error {
			payments++
			return nil
		}))
		bus.Register(NewHandlerFunc([]model.EventType{model.EventTypeSettlement}, func(context.Context, Envelope) error {
			settlements++
			return nil
		}))

		require.NoError(t, bus.Publish(ctx, paymentEvent()))
		assert.Equal(t, 1, payments)
		assert.Equal(t, 0, settlements)
	})

	t.Run("failing handler does not stop others", func(t *testing.T) {
		bus := NewBus(zap.NewNop())
		boom := errors.New("boom")
		called := false
		bus.Register(NewHandlerFunc([]model.EventType{model.EventTypePayment}, func(context.Context, Envelope) error {
			return boom
		}))
		bus.Register(NewHandlerFunc(nil, func(context.Context, Envelope) error {
			called = true
			return nil
		}))

		err := bus.Publish(ctx, paymentEvent())
		assert.ErrorIs(t, err, boom)
		assert.True(t, called)
	})

	t.Run("no handlers", func(t *testing.T) {
		assert.NoError(t, NewBus(zap.NewNop()).Publish(ctx, paymentEvent()))
	})
}

func TestChannelHandler(t *testing.T) {
	messages := new(MockMessagePort)
	var published []byte
	messages.On("Publish", mock.Anything, "transactions.events", mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return(nil)

	bus := NewBus(zap.NewNop())
	bus.Register(NewChannelHandler(messages, "transactions.events"))

	event := paymentEvent()
	event.TransactionError = &model.TransactionError{ErrorCode: "NOT_ENOUGH_FUNDS"}
	require.NoError(t, bus.Publish(context.Background(), event))
	messages.AssertExpectations(t)

	var body map[string]any
	require.NoError(t, json.Unmarshal(published, &body))
	assert.Equal(t, "tx-1", body["transactionId"])
	assert.Equal(t, "SUCCESSFUL", body["status"])
	assert.Equal(t, "PAYMENT", body["type"])
	assert.Equal(t, "1000", body["amount"])
	assert.NotEmpty(t, body["id"])
	assert.NotNil(t, body["TransactionError"])
}
