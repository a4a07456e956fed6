package requests_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentflow/approvals/pkg/channels/gochannel"
	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/requests"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]*requests.LocalRequest
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]*requests.LocalRequest)}
}

func (s *memStore) Get(_ context.Context, requestID string) (*requests.LocalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request := *s.data[requestID]

	return &request, nil
}

func (s *memStore) Update(_ context.Context, request *requests.LocalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *request
	s.data[request.RequestID] = &copied

	return nil
}

func (s *memStore) get(requestID string) requests.LocalRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.data[requestID]
}

func setupBus(t *testing.T) (*eventbus.WatermillEventBus, *memStore) {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	store := newMemStore()
	consumer := requests.NewConsumer(store, slog.Default())
	require.NoError(t, consumer.Register(bus))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, bus.Subscribe(ctx))

	return bus, store
}

func TestConsumerAppliesLifecycle(t *testing.T) {
	bus, store := setupBus(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, &requests.LocalRequest{
		RequestID:     "req-1",
		Status:        requests.StatusPendingApproval,
		CurrentStepID: "step-1",
	}))

	// An intermediate approval only refreshes the step pointer.
	stepApproved := events.StepApproved{
		BaseEvent:  events.NewBaseEvent(events.StepApprovedEvent, events.RequestTypeRecruitment, "req-1"),
		StepID:     "step-1",
		NextStepID: "step-2",
	}
	require.NoError(t, bus.Publish(ctx, "req-1", stepApproved))

	require.Eventually(t, func() bool {
		return store.get("req-1").CurrentStepID == "step-2"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, requests.StatusPendingApproval, store.get("req-1").Status)

	completed := events.WorkflowCompleted{
		BaseEvent: events.NewBaseEvent(events.WorkflowCompletedEvent, events.RequestTypeRecruitment, "req-1"),
	}
	require.NoError(t, bus.Publish(ctx, "req-1", completed))

	require.Eventually(t, func() bool {
		return store.get("req-1").Status == requests.StatusApproved
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, store.get("req-1").CurrentStepID)
}

func TestConsumerToleratesDuplicates(t *testing.T) {
	bus, store := setupBus(t)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, &requests.LocalRequest{
		RequestID: "req-2",
		Status:    requests.StatusPendingApproval,
	}))

	rejected := events.RequestRejected{
		BaseEvent: events.NewBaseEvent(events.RequestRejectedEvent, events.RequestTypeRecruitment, "req-2"),
		StepID:    "step-1",
	}
	rejected.Reason = "missing budget"

	require.NoError(t, bus.Publish(ctx, "req-2", rejected))

	require.Eventually(t, func() bool {
		return store.get("req-2").Status == requests.StatusRejected
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "missing budget", store.get("req-2").Reason)

	// Redelivery of the same event leaves the settled status alone.
	require.NoError(t, bus.Publish(ctx, "req-2", rejected))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, requests.StatusRejected, store.get("req-2").Status)
}

func TestProducerSubmit(t *testing.T) {
	t.Parallel()

	publisher := &capturePublisher{}
	producer := requests.NewProducer(publisher)

	next, err := producer.Submit(context.Background(), requests.StatusDraft, requests.Submission{
		RequestID:   "req-3",
		RequestType: events.RequestTypeRecruitment,
		RequesterID: "user-1",
		Attributes:  map[string]string{"department_id": "eng"},
	})
	require.NoError(t, err)
	assert.Equal(t, requests.StatusPendingApproval, next)
	require.Len(t, publisher.published, 1)

	submitted, ok := publisher.published[0].(events.RequestSubmitted)
	require.True(t, ok)
	assert.Equal(t, "req-3", submitted.RequestID)
	assert.Equal(t, "eng", submitted.Attributes["department_id"])

	// An in-flight request cannot be submitted again.
	_, err = producer.Submit(context.Background(), requests.StatusPendingApproval, requests.Submission{
		RequestID:   "req-3",
		RequestType: events.RequestTypeRecruitment,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, requests.ErrInvalidStatusTransition)

	// A returned request resubmits with the same id.
	_, err = producer.Submit(context.Background(), requests.StatusReturned, requests.Submission{
		RequestID:   "req-3",
		RequestType: events.RequestTypeRecruitment,
	})
	require.NoError(t, err)
}

type capturePublisher struct {
	mu        sync.Mutex
	published []eventbus.Event
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.published = append(p.published, event)

	return nil
}
