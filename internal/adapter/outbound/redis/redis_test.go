package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

func TestLinkingRecordStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewLinkingRecordStore(db, time.Hour)
	ctx := context.Background()

	record := &model.LinkingRecord{
		ID:                    "cr-1",
		OriginalTransactionID: "tx-1",
		Leg:                   model.LegCustomerRefund,
		CreatedAt:             time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(record)
	require.NoError(t, err)

	t.Run("create", func(t *testing.T) {
		mock.ExpectSetNX("linking:cr-1", data, time.Hour).SetVal(true)
		require.NoError(t, store.Create(ctx, record))
	})

	t.Run("create duplicate", func(t *testing.T) {
		mock.ExpectSetNX("linking:cr-1", data, time.Hour).SetVal(false)
		assert.ErrorIs(t, store.Create(ctx, record), outbound.ErrLinkingRecordExists)
	})

	t.Run("get", func(t *testing.T) {
		mock.ExpectGet("linking:cr-1").SetVal(string(data))

		got, err := store.Get(ctx, "cr-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "tx-1", got.OriginalTransactionID)
		assert.Equal(t, model.LegCustomerRefund, got.Leg)
	})

	t.Run("get expired", func(t *testing.T) {
		mock.ExpectGet("linking:cr-2").RedisNil()

		got, err := store.Get(ctx, "cr-2")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("get error", func(t *testing.T) {
		mock.ExpectGet("linking:cr-3").SetErr(errors.New("connection refused"))

		_, err := store.Get(ctx, "cr-3")
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		mock.ExpectDel("linking:cr-1").SetVal(1)
		require.NoError(t, store.Delete(ctx, "cr-1"))

		mock.ExpectDel("linking:gone").SetVal(0)
		require.NoError(t, store.Delete(ctx, "gone"))
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestLock(t *testing.T, cfg LockConfig) (*distributedLock, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	l := NewDistributedLock(db, cfg, zap.NewNop()).(*distributedLock)
	l.token = func() string { return "tok" }
	return l, mock
}

func TestDistributedLock(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire and release", func(t *testing.T) {
		l, mock := newTestLock(t, LockConfig{TTL: 30 * time.Second})

		mock.ExpectSetNX("lock:transaction:tx-1", "tok", 30*time.Second).SetVal(true)
		mock.ExpectEval(releaseScript, []string{"lock:transaction:tx-1"}, "tok").SetVal(int64(1))

		release, err := l.Acquire(ctx, "transaction:tx-1")
		require.NoError(t, err)
		release()

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("times out while held", func(t *testing.T) {
		l, mock := newTestLock(t, LockConfig{
			TTL:          30 * time.Second,
			WaitTimeout:  20 * time.Millisecond,
			PollInterval: time.Second,
		})

		mock.ExpectSetNX("lock:transaction:tx-1", "tok", 30*time.Second).SetVal(false)

		_, err := l.Acquire(ctx, "transaction:tx-1")
		assert.ErrorIs(t, err, outbound.ErrLockTimeout)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		l, mock := newTestLock(t, LockConfig{TTL: 30 * time.Second})

		mock.ExpectSetNX("lock:transaction:tx-1", "tok", 30*time.Second).SetErr(errors.New("READONLY"))

		_, err := l.Acquire(ctx, "transaction:tx-1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, outbound.ErrLockTimeout)
	})
}

func TestMessagePublisher(t *testing.T) {
	db, mock := redismock.NewClientMock()
	publisher := NewMessagePublisher(db)
	msg := []byte(`{"transactionId":"tx-1","status":"SUCCESSFUL"}`)

	mock.ExpectPublish("transactions.events", msg).SetVal(2)
	require.NoError(t, publisher.Publish(context.Background(), "transactions.events", msg))

	mock.ExpectPublish("transactions.events", msg).SetErr(errors.New("closed"))
	assert.Error(t, publisher.Publish(context.Background(), "transactions.events", msg))

	assert.NoError(t, mock.ExpectationsWereMet())
}
