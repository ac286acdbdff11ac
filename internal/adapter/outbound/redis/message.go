package redis

import (
	"context"
	"fmt"

	"github.com/paylink/reconciler/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

// messagePublisher implements outbound.MessagePort with Redis PUBLISH.
type messagePublisher struct {
	client redis.UniversalClient
}

// NewMessagePublisher creates a Redis pub/sub publisher.
func NewMessagePublisher(client redis.UniversalClient) outbound.MessagePort {
	return &messagePublisher{client: client}
}

func (p *messagePublisher) Publish(ctx context.Context, channel string, message []byte) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Compile-time check
var _ outbound.MessagePort = (*messagePublisher)(nil)
