package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// CodeCircuitOpen is the ProviderError code for calls refused by an open breaker.
const CodeCircuitOpen = "CIRCUIT_OPEN"

// CallObserver records provider call outcomes and breaker state changes.
type CallObserver interface {
	ObserveProviderCall(rail, operation, outcome string, duration time.Duration)
	ObserveBreakerState(rail, state string)
}

// BreakerConfig controls the per-rail circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
	}
}

// guardedAdapter wraps a rail adapter with a circuit breaker and call metrics.
type guardedAdapter struct {
	next     outbound.ProviderAdapterPort
	breaker  *gobreaker.CircuitBreaker[any]
	observer CallObserver
	logger   *zap.Logger
}

// Guard wraps adapter with a circuit breaker. Only failures that say the
// provider is unhealthy trip it; business rejections do not.
func Guard(adapter outbound.ProviderAdapterPort, cfg BreakerConfig, observer CallObserver, logger *zap.Logger) outbound.ProviderAdapterPort {
	rail := string(adapter.Rail())
	g := &guardedAdapter{next: adapter, observer: observer, logger: logger}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        rail,
		MaxRequests: cfg.SuccessThreshold,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				zap.String("rail", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if observer != nil {
				observer.ObserveBreakerState(name, to.String())
			}
		},
	})
	return g
}

func (g *guardedAdapter) Rail() model.PaymentMethod {
	return g.next.Rail()
}

func (g *guardedAdapter) InitiatePayment(ctx context.Context, amount, currency, payerRef, reference string) (string, error) {
	res, err := g.execute("initiate_payment", func() (any, error) {
		return g.next.InitiatePayment(ctx, amount, currency, payerRef, reference)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

func (g *guardedAdapter) CheckStatus(ctx context.Context, correlationID string, leg model.Leg) (*model.ProviderStatus, error) {
	res, err := g.execute("check_status", func() (any, error) {
		return g.next.CheckStatus(ctx, correlationID, leg)
	})
	if err != nil {
		return nil, err
	}
	return res.(*model.ProviderStatus), nil
}

func (g *guardedAdapter) InitiateTransfer(ctx context.Context, req outbound.TransferRequest) (string, error) {
	res, err := g.execute("initiate_transfer", func() (any, error) {
		return g.next.InitiateTransfer(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// NotifyCounterparty bypasses the breaker: it only talks to ourselves.
func (g *guardedAdapter) NotifyCounterparty(ctx context.Context, event *model.ProviderStatusEvent, leg model.Leg) error {
	return g.next.NotifyCounterparty(ctx, event, leg)
}

func (g *guardedAdapter) execute(operation string, fn func() (any, error)) (any, error) {
	start := time.Now()
	res, err := g.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &outbound.ProviderError{
			Rail:      g.next.Rail(),
			Operation: operation,
			Code:      CodeCircuitOpen,
			Message:   "provider temporarily unavailable",
			Err:       err,
		}
	}
	if g.observer != nil {
		g.observer.ObserveProviderCall(string(g.next.Rail()), operation, callOutcome(err), time.Since(start))
	}
	return res, err
}

// countsAsHealthy reports whether err still shows a healthy provider:
// an answer that rejects the request is healthy, an outage is not.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var pe *outbound.ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.Temporary {
		return false
	}
	return pe.StatusCode != 0 && pe.StatusCode < http.StatusInternalServerError && pe.StatusCode != http.StatusTooManyRequests
}

func callOutcome(err error) string {
	if err == nil {
		return "success"
	}
	var pe *outbound.ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.Code == CodeCircuitOpen:
			return "circuit_open"
		case countsAsHealthy(err):
			return "rejected"
		}
	}
	return "error"
}

// Compile-time check
var _ outbound.ProviderAdapterPort = (*guardedAdapter)(nil)
