package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy retries provider calls with randomized exponential backoff.
// Only errors IsRetryable accepts are retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the randomization factor: each delay is drawn from
	// interval·[1-Jitter, 1+Jitter]. Zero makes delays deterministic.
	Jitter float64

	// OnRetry is called before each wait with the attempt that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultRetryPolicy returns 5 attempts, 200ms base delay, ±50% jitter and a
// 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.5,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         p.MaxDelay,
	}
	b.Reset()
	return cappedBackOff{BackOff: b, max: p.MaxDelay}
}

// cappedBackOff keeps randomized delays under MaxDelay.
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c cappedBackOff) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if d != backoff.Stop && c.max > 0 && d > c.max {
		return c.max
	}
	return d
}

// throttled carries a provider Retry-After hint to backoff.Retry, which reads
// it as a *backoff.RetryAfterError, while keeping the provider error intact.
type throttled struct {
	err   error
	delay time.Duration
}

func (t *throttled) Error() string { return t.err.Error() }
func (t *throttled) Unwrap() error { return t.err }

func (t *throttled) As(target any) bool {
	if ra, ok := target.(**backoff.RetryAfterError); ok {
		*ra = &backoff.RetryAfterError{Duration: t.delay}
		return true
	}
	return false
}

// Do runs op until it succeeds, fails with a non-retryable error, the attempts
// run out or ctx ends. It returns op's last error, or ctx's error if the wait
// was interrupted.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry is Do for operations that return a value.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		result, err := op(ctx)
		switch {
		case err == nil:
			return result, nil
		case !IsRetryable(err):
			return result, backoff.Permanent(err)
		}
		if hint := RetryAfter(err); hint > 0 {
			if p.MaxDelay > 0 && hint > p.MaxDelay {
				hint = p.MaxDelay
			}
			return result, &throttled{err: err, delay: hint}
		}
		return result, err
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempt, delay, err)
			}
		}),
	)
	var t *throttled
	if errors.As(err, &t) {
		err = t.err
	}
	return result, err
}
