package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paylink/reconciler/internal/port/outbound"
)

// localLock implements outbound.LockPort for a single instance.
// Each held key owns a channel that is closed on release to wake waiters.
type localLock struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

// NewLocalLock creates an in-process per-key lock.
func NewLocalLock(wait time.Duration) outbound.LockPort {
	if wait <= 0 {
		wait = 10 * time.Second
	}
	return &localLock{held: make(map[string]chan struct{}), wait: wait}
}

func (l *localLock) Acquire(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	for {
		l.mu.Lock()
		done, busy := l.held[key]
		if !busy {
			done = make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-done:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s", outbound.ErrLockTimeout, key)
		}
	}
}

// Compile-time check
var _ outbound.LockPort = (*localLock)(nil)
