package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentflow/approvals/pkg/channels/gochannel"
	"github.com/talentflow/approvals/pkg/directory"
	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/idempotency"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/orchestrator"
	"github.com/talentflow/approvals/pkg/otelhelper"
	"github.com/talentflow/approvals/pkg/persistence/memory"
)

type managerFixture struct {
	bus     *eventbus.WatermillEventBus
	store   *memory.Persistence
	manager *WorkerManager
}

func setupManager(t *testing.T) *managerFixture {
	t.Helper()

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())
	store := memory.NewPersistence()

	workflow := &models.Workflow{
		Name: "Recruitment default",
		Type: models.WorkflowTypeRecruitment,
		Steps: []*models.WorkflowStep{
			{StepOrder: 1, PositionID: "pos-manager"},
		},
		Active: true,
	}
	require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))

	orch := orchestrator.New(
		store,
		directory.NewStaticResolver(map[string]string{"pos-manager": "user-manager"}),
		bus,
		slog.Default(),
		otelhelper.NoopTracer(),
	)

	manager := NewWorkerManager("worker-test", bus, orch,
		idempotency.NewMemoryGuard(time.Minute), slog.Default(), otelhelper.NoopTracer())

	require.NoError(t, manager.registerHandlers())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bus.Subscribe(ctx))

	return &managerFixture{bus: bus, store: store, manager: manager}
}

func TestWorkerProcessesSubmission(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	event := events.RequestSubmitted{
		BaseEvent: events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-1"),
	}
	require.NoError(t, f.bus.Publish(ctx, "req-1", event))

	require.Eventually(t, func() bool {
		pending, err := f.store.TrackingRepository().CurrentPending(ctx, "req-1")

		return err == nil && pending != nil
	}, time.Second, 10*time.Millisecond)

	pending, err := f.store.TrackingRepository().CurrentPending(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "user-manager", pending.AssignedUserID)
}

func TestWorkerSkipsDuplicateEventIDs(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	event := events.RequestSubmitted{
		BaseEvent: events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-2"),
	}

	// Same payload delivered twice, as at-least-once transports do. The
	// guard short-circuits the second; even without it the orchestrator
	// would no-op on the existing pending row.
	require.NoError(t, f.bus.Publish(ctx, "req-2", event))
	require.NoError(t, f.bus.Publish(ctx, "req-2", event))

	require.Eventually(t, func() bool {
		history, err := f.store.TrackingRepository().HistoryByRequest(ctx, "req-2")

		return err == nil && len(history) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	history, err := f.store.TrackingRepository().HistoryByRequest(ctx, "req-2")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestWorkerRetriesAfterTransientFailure(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	calls := 0
	handler := f.manager.deduplicated(func(_ context.Context, _ any) error {
		calls++
		if calls == 1 {
			return errors.New("directory unavailable")
		}

		return nil
	})

	event := &events.RequestSubmitted{
		BaseEvent: events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-6"),
	}

	// First delivery fails transiently and is nacked; the redelivery of the
	// same event id must reach the handler, not be skipped as a duplicate.
	require.Error(t, handler(ctx, event))
	require.NoError(t, handler(ctx, event))
	assert.Equal(t, 2, calls)

	// After a success the mark sticks: the next redelivery is skipped.
	require.NoError(t, handler(ctx, event))
	assert.Equal(t, 2, calls)
}

func TestWorkerAppliesDecision(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	submitted := events.RequestSubmitted{
		BaseEvent: events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-3"),
	}
	require.NoError(t, f.bus.Publish(ctx, "req-3", submitted))

	var stepID string

	require.Eventually(t, func() bool {
		pending, err := f.store.TrackingRepository().CurrentPending(ctx, "req-3")
		if err != nil || pending == nil {
			return false
		}

		stepID = pending.StepID

		return true
	}, time.Second, 10*time.Millisecond)

	decision := events.DecisionSubmitted{
		BaseEvent: events.NewBaseEvent(events.DecisionSubmittedEvent, events.RequestTypeRecruitment, "req-3"),
		StepID:    stepID,
		Decision:  events.DecisionApprove,
		Approved:  true,
	}
	decision.ActorUserID = "user-manager"
	require.NoError(t, f.bus.Publish(ctx, "req-3", decision))

	// Single-step workflow: the approval completes it.
	require.Eventually(t, func() bool {
		history, err := f.store.TrackingRepository().HistoryByRequest(ctx, "req-3")

		return err == nil && len(history) == 1 &&
			history[0].Status == models.TrackingStatusApproved
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerDropsConflictingDecision(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	submitted := events.RequestSubmitted{
		BaseEvent: events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-4"),
	}
	require.NoError(t, f.bus.Publish(ctx, "req-4", submitted))

	require.Eventually(t, func() bool {
		pending, err := f.store.TrackingRepository().CurrentPending(ctx, "req-4")

		return err == nil && pending != nil
	}, time.Second, 10*time.Millisecond)

	// A decision naming a step that is not pending must be dropped, not
	// nacked into a redelivery loop.
	decision := events.DecisionSubmitted{
		BaseEvent: events.NewBaseEvent(events.DecisionSubmittedEvent, events.RequestTypeRecruitment, "req-4"),
		StepID:    "not-the-pending-step",
		Decision:  events.DecisionApprove,
	}
	decision.ActorUserID = "user-manager"
	require.NoError(t, f.bus.Publish(ctx, "req-4", decision))

	time.Sleep(50 * time.Millisecond)

	pending, err := f.store.TrackingRepository().CurrentPending(ctx, "req-4")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, models.TrackingStatusPending, pending.Status)
}

func TestWorkerCancels(t *testing.T) {
	f := setupManager(t)
	ctx := context.Background()

	submitted := events.RequestSubmitted{
		BaseEvent: events.NewBaseEvent(events.RequestSubmittedEvent, events.RequestTypeRecruitment, "req-5"),
	}
	require.NoError(t, f.bus.Publish(ctx, "req-5", submitted))

	require.Eventually(t, func() bool {
		pending, err := f.store.TrackingRepository().CurrentPending(ctx, "req-5")

		return err == nil && pending != nil
	}, time.Second, 10*time.Millisecond)

	cancel := events.RequestCancelRequested{
		BaseEvent: events.NewBaseEvent(events.RequestCancelRequestedEvent, events.RequestTypeRecruitment, "req-5"),
	}
	cancel.ActorUserID = "requester-1"
	cancel.Reason = "withdrawn"
	require.NoError(t, f.bus.Publish(ctx, "req-5", cancel))

	require.Eventually(t, func() bool {
		history, err := f.store.TrackingRepository().HistoryByRequest(ctx, "req-5")

		return err == nil && len(history) == 1 &&
			history[0].Status == models.TrackingStatusCancelled
	}, time.Second, 10*time.Millisecond)
}
