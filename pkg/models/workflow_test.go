package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talentflow/approvals/pkg/models"
)

func validWorkflow() *models.Workflow {
	return &models.Workflow{
		Name: "Recruitment default",
		Type: models.WorkflowTypeRecruitment,
		Steps: []*models.WorkflowStep{
			{ID: "s1", StepOrder: 1, PositionID: "pos-manager"},
			{ID: "s2", StepOrder: 2, PositionID: "pos-director"},
			{ID: "s3", StepOrder: 3, PositionID: "pos-hr"},
		},
	}
}

func TestWorkflowValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*models.Workflow)
		wantErr string
	}{
		{
			name:   "valid workflow",
			mutate: func(w *models.Workflow) {},
		},
		{
			name:    "unknown type",
			mutate:  func(w *models.Workflow) { w.Type = "payroll" },
			wantErr: "invalid workflow type",
		},
		{
			name:    "no steps",
			mutate:  func(w *models.Workflow) { w.Steps = nil },
			wantErr: "at least one step",
		},
		{
			name: "duplicate order",
			mutate: func(w *models.Workflow) {
				w.Steps[1].StepOrder = 1
			},
			wantErr: "duplicate step order",
		},
		{
			name: "gap in orders",
			mutate: func(w *models.Workflow) {
				w.Steps[2].StepOrder = 5
			},
			wantErr: "contiguous",
		},
		{
			name: "orders not starting at 1",
			mutate: func(w *models.Workflow) {
				w.Steps[0].StepOrder = 4
			},
			wantErr: "contiguous",
		},
		{
			name: "missing position",
			mutate: func(w *models.Workflow) {
				w.Steps[0].PositionID = ""
			},
			wantErr: "approver position",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			workflow := validWorkflow()
			tt.mutate(workflow)

			err := workflow.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWorkflowStepNavigation(t *testing.T) {
	t.Parallel()

	workflow := validWorkflow()

	first := workflow.FirstStep()
	require.NotNil(t, first)
	assert.Equal(t, "s1", first.ID)

	second := workflow.NextStep(first)
	require.NotNil(t, second)
	assert.Equal(t, "s2", second.ID)
	assert.False(t, workflow.IsLastStep(second))

	third := workflow.NextStep(second)
	require.NotNil(t, third)
	assert.True(t, workflow.IsLastStep(third))
	assert.Nil(t, workflow.NextStep(third))

	assert.Equal(t, second, workflow.StepByID("s2"))
	assert.Nil(t, workflow.StepByID("missing"))
	assert.Equal(t, third, workflow.StepAtOrder(3))
}

func TestDeriveRequestState(t *testing.T) {
	t.Parallel()

	row := func(status models.TrackingStatus) *models.ApprovalTracking {
		return &models.ApprovalTracking{Status: status}
	}

	tests := []struct {
		name    string
		history []*models.ApprovalTracking
		want    models.RequestState
	}{
		{
			name: "empty history",
			want: models.RequestStateNotStarted,
		},
		{
			name:    "open step",
			history: []*models.ApprovalTracking{row(models.TrackingStatusPending)},
			want:    models.RequestStateInProgress,
		},
		{
			name: "pending after returns",
			history: []*models.ApprovalTracking{
				row(models.TrackingStatusReturned),
				row(models.TrackingStatusPending),
			},
			want: models.RequestStateInProgress,
		},
		{
			name: "all approved",
			history: []*models.ApprovalTracking{
				row(models.TrackingStatusApproved),
				row(models.TrackingStatusApproved),
			},
			want: models.RequestStateCompleted,
		},
		{
			name: "rejected at second step",
			history: []*models.ApprovalTracking{
				row(models.TrackingStatusApproved),
				row(models.TrackingStatusRejected),
			},
			want: models.RequestStateRejected,
		},
		{
			name: "cancelled mid-flight",
			history: []*models.ApprovalTracking{
				row(models.TrackingStatusApproved),
				row(models.TrackingStatusCancelled),
			},
			want: models.RequestStateCancelled,
		},
		{
			name: "delegated then approved",
			history: []*models.ApprovalTracking{
				row(models.TrackingStatusDelegated),
				row(models.TrackingStatusApproved),
			},
			want: models.RequestStateCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, models.DeriveRequestState(tt.history))
		})
	}
}

func TestTrackingStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, models.TrackingStatusPending.Terminal())
	assert.False(t, models.TrackingStatus("BOGUS").Terminal())

	for _, status := range []models.TrackingStatus{
		models.TrackingStatusApproved,
		models.TrackingStatusRejected,
		models.TrackingStatusCancelled,
		models.TrackingStatusDelegated,
		models.TrackingStatusReturned,
	} {
		assert.True(t, status.Terminal(), string(status))
	}
}
