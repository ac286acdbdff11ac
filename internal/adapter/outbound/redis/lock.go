package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paylink/reconciler/internal/port/outbound"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockKeyPrefix = "lock:"

// releaseScript deletes the lock only if it still carries our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// LockConfig controls the distributed lock.
type LockConfig struct {
	TTL          time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// distributedLock implements outbound.LockPort with SET NX and a token.
type distributedLock struct {
	client redis.UniversalClient
	cfg    LockConfig
	token  func() string
	logger *zap.Logger
}

// NewDistributedLock creates a Redis-backed per-key lock.
func NewDistributedLock(client redis.UniversalClient, cfg LockConfig, logger *zap.Logger) outbound.LockPort {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &distributedLock{
		client: client,
		cfg:    cfg,
		token:  func() string { return uuid.NewString() },
		logger: logger,
	}
}

func (l *distributedLock) Acquire(ctx context.Context, key string) (func(), error) {
	fullKey := lockKeyPrefix + key
	token := l.token()

	waitCtx, cancel := context.WithTimeout(ctx, l.cfg.WaitTimeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, fullKey, token, l.cfg.TTL).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(fullKey, token) }, nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", outbound.ErrLockTimeout, key)
		case <-ticker.C:
		}
	}
}

// release runs detached from the request context so a cancelled request
// still frees the lock.
func (l *distributedLock) release(fullKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.client.Eval(ctx, releaseScript, []string{fullKey}, token).Err(); err != nil {
		l.logger.Warn("failed to release lock",
			zap.String("key", fullKey),
			zap.Error(err),
		)
	}
}

// Compile-time check
var _ outbound.LockPort = (*distributedLock)(nil)
