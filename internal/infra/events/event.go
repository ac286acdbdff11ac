package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/paylink/reconciler/internal/model"
)

// Envelope is a transaction event stamped for delivery.
type Envelope struct {
	ID         uuid.UUID `json:"id"`
	OccurredAt time.Time `json:"occurredAt"`
	*model.TransactionEvent
}

// NewEnvelope stamps event with a fresh id and the current time.
func NewEnvelope(event *model.TransactionEvent) Envelope {
	return Envelope{
		ID:               uuid.New(),
		OccurredAt:       time.Now().UTC(),
		TransactionEvent: event,
	}
}
