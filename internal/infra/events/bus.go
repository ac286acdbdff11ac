package events

import (
	"context"
	"errors"
	"sync"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
	"go.uber.org/zap"
)

// Bus is a synchronous in-process dispatcher for transaction events.
type Bus struct {
	mu       sync.RWMutex
	handlers map[model.EventType][]Handler
	all      []Handler
	logger   *zap.Logger
}

// NewBus creates a new event bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		handlers: make(map[model.EventType][]Handler),
		logger:   logger,
	}
}

// Register registers a handler for the events it handles.
func (b *Bus) Register(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := handler.Handles()
	if len(types) == 0 {
		b.all = append(b.all, handler)
		return
	}
	for _, eventType := range types {
		b.handlers[eventType] = append(b.handlers[eventType], handler)
		b.logger.Debug("registered event handler",
			zap.String("event_type", string(eventType)),
		)
	}
}

// Publish dispatches an event to every matching handler in registration
// order. A failing handler does not stop the others; all failures are
// returned joined.
func (b *Bus) Publish(ctx context.Context, event *model.TransactionEvent) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.all)+len(b.handlers[event.Type]))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	envelope := NewEnvelope(event)
	b.logger.Info("publishing event",
		zap.String("event_id", envelope.ID.String()),
		zap.String("event_type", string(event.Type)),
		zap.String("transaction_id", event.TransactionID),
		zap.String("status", string(event.Status)),
		zap.Int("handler_count", len(handlers)),
	)

	var errs []error
	for _, handler := range handlers {
		if err := handler.Handle(ctx, envelope); err != nil {
			b.logger.Error("event handler failed",
				zap.String("event_id", envelope.ID.String()),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compile-time check
var _ outbound.EventPublisherPort = (*Bus)(nil)
