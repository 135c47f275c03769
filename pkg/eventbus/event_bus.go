// Package eventbus carries run lifecycle and record store events between the
// coordinator and status projectors.
package eventbus

import (
	"context"

	"github.com/dukex/runwatch/pkg/events"
)

// Event is anything published on the bus; its type selects the handler.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events keyed by canvas ID, so that a partitioned
// transport keeps the events of one canvas in order.
type EventPublisher interface {
	Publish(ctx context.Context, canvasID string, event Event) error
}

// EventSubscriber routes decoded events to one handler per event type.
// Handlers must be registered before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event struct, e.g. *events.RunFinished.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
