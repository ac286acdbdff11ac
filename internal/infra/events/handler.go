package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// Handler is the interface for event handlers.
type Handler interface {
	// Handles returns the event types this handler processes.
	// An empty list means every type.
	Handles() []model.EventType

	// Handle processes the given event. Handlers must tolerate duplicates.
	Handle(ctx context.Context, envelope Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	eventTypes []model.EventType
	fn         func(context.Context, Envelope) error
}

// NewHandlerFunc creates a new HandlerFunc.
func NewHandlerFunc(eventTypes []model.EventType, fn func(context.Context, Envelope) error) *HandlerFunc {
	return &HandlerFunc{
		eventTypes: eventTypes,
		fn:         fn,
	}
}

// Handles returns the event types this handler processes.
func (h *HandlerFunc) Handles() []model.EventType {
	return h.eventTypes
}

// Handle processes the given event.
func (h *HandlerFunc) Handle(ctx context.Context, envelope Envelope) error {
	return h.fn(ctx, envelope)
}

// ChannelHandler forwards every event as JSON to a message channel.
type ChannelHandler struct {
	messages outbound.MessagePort
	channel  string
}

// NewChannelHandler creates a handler that publishes events on channel.
func NewChannelHandler(messages outbound.MessagePort, channel string) *ChannelHandler {
	return &ChannelHandler{messages: messages, channel: channel}
}

// Handles returns nil: the channel receives every event type.
func (h *ChannelHandler) Handles() []model.EventType {
	return nil
}

// Handle publishes the event.
func (h *ChannelHandler) Handle(ctx context.Context, envelope Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return h.messages.Publish(ctx, h.channel, data)
}
