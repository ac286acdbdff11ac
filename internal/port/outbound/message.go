package outbound

import (
	"context"

	"github.com/paylink/reconciler/internal/model"
)

// EventPublisherPort defines event publishing operations.
type EventPublisherPort interface {
	// Publish publishes a transaction event. Delivery is best-effort.
	Publish(ctx context.Context, event *model.TransactionEvent) error
}

// MessagePort defines message fan-out operations.
type MessagePort interface {
	// Publish publishes a message to a channel.
	Publish(ctx context.Context, channel string, message []byte) error
}
