package eventbus_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentflow/approvals/pkg/channels/gochannel"
	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
)

func setupBus(t *testing.T) (*eventbus.WatermillEventBus, *gochannelPair) {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	return bus, &gochannelPair{publisher: pub}
}

type gochannelPair struct {
	publisher message.Publisher
}

// publishRaw injects an arbitrary payload, bypassing the bus's marshaling.
func (p *gochannelPair) publishRaw(eventType events.EventType, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(events.EventKeyMetadataKey, "req-raw")
	msg.Metadata.Set(events.EventTypeMetadataKey, string(eventType))

	return p.publisher.Publish(events.Topic, msg)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus, _ := setupBus(t)

	var (
		mu       sync.Mutex
		received []*events.RequestSubmitted
	)

	err := bus.Handle(events.RequestSubmittedEvent, func(_ context.Context, event any) error {
		submitted, ok := event.(*events.RequestSubmitted)
		if !ok {
			t.Errorf("unexpected event type %T", event)

			return nil
		}

		mu.Lock()
		received = append(received, submitted)
		mu.Unlock()

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx))

	event := events.RequestSubmitted{
		BaseEvent:  events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-1"),
		Attributes: map[string]string{"department_id": "eng"},
	}
	require.NoError(t, bus.Publish(ctx, "req-1", event))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "req-1", received[0].RequestID)
	assert.Equal(t, "eng", received[0].Attributes["department_id"])
}

func TestMalformedPayloadIsDroppedNotRetried(t *testing.T) {
	bus, raw := setupBus(t)

	var calls sync.Map

	err := bus.Handle(events.DecisionSubmittedEvent, func(_ context.Context, event any) error {
		calls.Store("called", true)

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx))

	// Fails envelope validation: no id, no request_id.
	require.NoError(t, raw.publishRaw(events.DecisionSubmittedEvent, []byte(`{"decision": "approve"}`)))

	require.Eventually(t, func() bool {
		return bus.DroppedMalformed() == 1
	}, time.Second, 10*time.Millisecond)

	_, called := calls.Load("called")
	assert.False(t, called)

	// Not even JSON.
	require.NoError(t, raw.publishRaw(events.DecisionSubmittedEvent, []byte(`{{{`)))

	require.Eventually(t, func() bool {
		return bus.DroppedMalformed() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestUnknownEventTypeIsAcked(t *testing.T) {
	bus, raw := setupBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx))

	// No handler registered; publish must not block or error even with
	// BlockPublishUntilSubscriberAck enabled.
	require.NoError(t, raw.publishRaw("approval.unknown", []byte(`{}`)))
}
