// Package eventbus abstracts the durable publish/subscribe channel carrying
// approval lifecycle events between the owning services and the orchestrator.
package eventbus

import (
	"context"

	"github.com/talentflow/approvals/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends an event keyed by request id; the transport partitions
	// on the key so events for one request stay ordered.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
