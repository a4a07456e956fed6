package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/talentflow/approvals/pkg/events"
)

// WatermillEventBus routes lifecycle events over any watermill
// publisher/subscriber pair (kafka in production, gochannel in tests).
type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
	logger        *slog.Logger

	// droppedMalformed counts payloads discarded by envelope validation or
	// decoding. Malformed payloads are acked, never retried.
	droppedMalformed atomic.Int64
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber, logger *slog.Logger) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
		logger:        logger.With("module", "eventbus"),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventKeyMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

// DroppedMalformed reports how many payloads were discarded as unparseable.
func (eb *WatermillEventBus) DroppedMalformed() int64 {
	return eb.droppedMalformed.Load()
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eb.dispatch(ctx, msg)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) dispatch(ctx context.Context, msg *message.Message) {
	eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

	handler, exists := eb.subscriptions[eventType]
	if !exists {
		msg.Ack()

		return
	}

	event := newEvent(eventType)
	if event == nil {
		// Unknown type with a registered handler cannot happen; ack anyway
		// so the partition is not blocked.
		msg.Ack()

		return
	}

	if err := events.ValidateEnvelope(msg.Payload); err != nil {
		eb.droppedMalformed.Add(1)
		eb.logger.ErrorContext(ctx, "Dropping malformed event payload",
			"event_type", eventType, "error", err)
		msg.Ack()

		return
	}

	if err := json.Unmarshal(msg.Payload, event); err != nil {
		eb.droppedMalformed.Add(1)
		eb.logger.ErrorContext(ctx, "Dropping undecodable event payload",
			"event_type", eventType, "error", err)
		msg.Ack()

		return
	}

	if err := handler(ctx, event); err != nil {
		// Handler errors are retryable; the transport redelivers and the
		// orchestrator's idempotent handlers make that safe.
		eb.logger.ErrorContext(ctx, "Event handler failed, nacking for redelivery",
			"event_type", eventType, "error", err)
		msg.Nack()

		return
	}

	msg.Ack()
}

func newEvent(eventType events.EventType) any {
	switch eventType {
	case events.RequestSubmittedEvent:
		return &events.RequestSubmitted{}
	case events.DecisionSubmittedEvent:
		return &events.DecisionSubmitted{}
	case events.RequestCancelRequestedEvent:
		return &events.RequestCancelRequested{}
	case events.StepApprovedEvent:
		return &events.StepApproved{}
	case events.WorkflowCompletedEvent:
		return &events.WorkflowCompleted{}
	case events.RequestRejectedEvent:
		return &events.RequestRejected{}
	case events.RequestReturnedEvent:
		return &events.RequestReturned{}
	case events.RequestCancelledEvent:
		return &events.RequestCancelled{}
	case events.StepDelegatedEvent:
		return &events.StepDelegated{}
	case events.StepReminderEvent:
		return &events.StepReminder{}
	default:
		return nil
	}
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
