package services_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/orchestrator"
	"github.com/talentflow/approvals/pkg/persistence/memory"
	"github.com/talentflow/approvals/pkg/services"
)

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

type captureDecider struct {
	mu     sync.Mutex
	inputs []orchestrator.DecideInput
	err    error
}

func (d *captureDecider) Decide(_ context.Context, input orchestrator.DecideInput) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inputs = append(d.inputs, input)

	return d.err
}

func newTrackingService(t *testing.T) (*services.Tracking, *memory.Persistence, *capturePublisher, *captureDecider) {
	t.Helper()

	store := memory.NewPersistence()
	publisher := &capturePublisher{}
	decider := &captureDecider{}

	return services.NewTracking(store, publisher, decider), store, publisher, decider
}

func openPending(t *testing.T, store *memory.Persistence, requestID, stepID, assignee string) {
	t.Helper()

	err := store.TrackingRepository().OpenPending(context.Background(), &models.ApprovalTracking{
		RequestID:      requestID,
		WorkflowID:     "wf-1",
		StepID:         stepID,
		StepOrder:      1,
		AssignedUserID: assignee,
	})
	require.NoError(t, err)
}

func TestSubmitDecisionApplies(t *testing.T) {
	t.Parallel()

	service, _, _, decider := newTrackingService(t)

	err := service.SubmitDecision(context.Background(), services.SubmitDecisionRequest{
		RequestID:   "req-1",
		RequestType: events.RequestTypeRecruitment,
		StepID:      "step-1",
		Decision:    events.DecisionApprove,
		ActorUserID: "user-1",
		Notes:       "lgtm",
		AuthToken:   "token",
	})
	require.NoError(t, err)

	require.Len(t, decider.inputs, 1)
	input := decider.inputs[0]
	assert.Equal(t, "req-1", input.RequestID)
	assert.Equal(t, "step-1", input.StepID)
	assert.Equal(t, events.DecisionApprove, input.Decision)
	assert.Equal(t, "user-1", input.ActorUserID)
	assert.Equal(t, "token", input.AuthToken)
}

func TestSubmitDecisionSurfacesLedgerErrors(t *testing.T) {
	t.Parallel()

	service, _, _, decider := newTrackingService(t)
	decider.err = orchestrator.ErrStaleEvent

	err := service.SubmitDecision(context.Background(), services.SubmitDecisionRequest{
		RequestID:   "req-1",
		StepID:      "step-1",
		Decision:    events.DecisionApprove,
		ActorUserID: "user-1",
	})
	require.Error(t, err)
	assert.True(t, orchestrator.IsStaleEvent(err))
}

func TestSubmitDecisionValidation(t *testing.T) {
	t.Parallel()

	service, _, _, decider := newTrackingService(t)
	ctx := context.Background()

	base := services.SubmitDecisionRequest{
		RequestID:   "req-1",
		StepID:      "step-1",
		Decision:    events.DecisionApprove,
		ActorUserID: "user-1",
	}

	tests := []struct {
		name    string
		mutate  func(*services.SubmitDecisionRequest)
		wantErr error
	}{
		{
			name:    "missing request id",
			mutate:  func(r *services.SubmitDecisionRequest) { r.RequestID = "" },
			wantErr: services.ErrEmptyRequestID,
		},
		{
			name:    "missing step id",
			mutate:  func(r *services.SubmitDecisionRequest) { r.StepID = "" },
			wantErr: services.ErrEmptyStepID,
		},
		{
			name:    "missing actor",
			mutate:  func(r *services.SubmitDecisionRequest) { r.ActorUserID = "" },
			wantErr: services.ErrEmptyActorID,
		},
		{
			name:    "reject without reason",
			mutate:  func(r *services.SubmitDecisionRequest) { r.Decision = events.DecisionReject },
			wantErr: services.ErrReasonRequired,
		},
		{
			name:    "return without reason",
			mutate:  func(r *services.SubmitDecisionRequest) { r.Decision = events.DecisionReturn },
			wantErr: services.ErrReasonRequired,
		},
		{
			name:    "delegate without delegate user",
			mutate:  func(r *services.SubmitDecisionRequest) { r.Decision = events.DecisionDelegate },
			wantErr: services.ErrDelegateRequired,
		},
		{
			name:    "unknown decision",
			mutate:  func(r *services.SubmitDecisionRequest) { r.Decision = "escalate" },
			wantErr: services.ErrInvalidDecision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)

			err := service.SubmitDecision(ctx, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, services.IsValidationError(err))
		})
	}

	// Nothing reaches the ledger on a validation failure.
	assert.Empty(t, decider.inputs)
}

func TestRequestState(t *testing.T) {
	t.Parallel()

	service, store, _, _ := newTrackingService(t)
	ctx := context.Background()

	openPending(t, store, "req-2", "step-1", "user-manager")

	state, err := service.RequestState(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, models.RequestStateInProgress, state.State)
	require.NotNil(t, state.Pending)
	assert.Equal(t, "step-1", state.Pending.StepID)
	assert.Len(t, state.History, 1)
}

func TestRequestStateUnknownRequest(t *testing.T) {
	t.Parallel()

	service, _, _, _ := newTrackingService(t)

	_, err := service.RequestState(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTrackingNotFound)
}

func TestListTrackingsInbox(t *testing.T) {
	t.Parallel()

	service, store, _, _ := newTrackingService(t)
	ctx := context.Background()

	openPending(t, store, "req-3", "step-1", "user-manager")
	openPending(t, store, "req-4", "step-1", "user-manager")
	openPending(t, store, "req-5", "step-1", "user-director")

	pending := models.TrackingStatusPending
	inbox, err := service.ListTrackings(ctx, services.ListTrackingsRequest{
		AssignedUserID: "user-manager",
		Status:         &pending,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), inbox.TotalCount)

	bogus := models.TrackingStatus("BOGUS")
	_, err = service.ListTrackings(ctx, services.ListTrackingsRequest{Status: &bogus})
	require.Error(t, err)
	assert.True(t, services.IsValidationError(err))
}

func TestRequestCancellation(t *testing.T) {
	t.Parallel()

	service, _, publisher, _ := newTrackingService(t)

	err := service.RequestCancellation(context.Background(), "req-6",
		events.RequestTypeOffer, "user-1", "withdrawn")
	require.NoError(t, err)

	require.Len(t, publisher.published, 1)
	cancel, ok := publisher.published[0].(events.RequestCancelRequested)
	require.True(t, ok)
	assert.Equal(t, "req-6", cancel.RequestID)
	assert.Equal(t, "withdrawn", cancel.Reason)

	err = service.RequestCancellation(context.Background(), "", events.RequestTypeOffer, "user-1", "")
	assert.ErrorIs(t, err, services.ErrEmptyRequestID)
}
