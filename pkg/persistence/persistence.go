// Package persistence defines the store interfaces for workflow templates and
// the approval tracking ledger, plus the shared error types.
package persistence

import (
	"context"
	"time"

	"github.com/talentflow/approvals/pkg/models"
)

// Persistence bundles the two stores owned by the orchestrator. Both live in
// the same database so a ledger transition and its follow-up row commit as
// one unit.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	TrackingRepository() TrackingRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters the template listing.
type ListWorkflowsOptions struct {
	Type    *models.WorkflowType
	Active  *bool
	Keyword string
	Limit   int
	Offset  int
}

// WorkflowRepository persists workflow templates. Editing a template replaces
// its step set atomically: previous steps are deactivated, never deleted, so
// ledger rows keep valid step references for audit.
type WorkflowRepository interface {
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	List(ctx context.Context, opts ListWorkflowsOptions) ([]*models.Workflow, int64, error)
	// ListActiveByType returns active templates of the given type, most
	// recently created first. Selection precedence relies on this order.
	ListActiveByType(ctx context.Context, workflowType models.WorkflowType) ([]*models.Workflow, error)
	// StepByID resolves any step ever attached to a workflow, active or not.
	StepByID(ctx context.Context, stepID string) (*models.WorkflowStep, error)
}

// ListTrackingsOptions filters ledger queries.
type ListTrackingsOptions struct {
	RequestID      string
	AssignedUserID string
	Status         *models.TrackingStatus
	Limit          int
	Offset         int
}

// TrackingRepository is the approval tracking ledger. It is the single
// serialization point per request: the open/close pair of a transition
// executes atomically and the store enforces at most one PENDING row per
// request id.
type TrackingRepository interface {
	// OpenPending creates a new PENDING row. Fails with
	// ErrPendingAlreadyExists when the request already has one.
	OpenPending(ctx context.Context, row *models.ApprovalTracking) error

	// ClosePending moves the PENDING row matching (requestID, stepID) to a
	// terminal status. Returns false without error when no such row exists;
	// that is the idempotency seam against duplicate delivery.
	ClosePending(ctx context.Context, requestID, stepID string, status models.TrackingStatus, actionUserID, notes string) (bool, error)

	// Transition closes the matching PENDING row and, when next is not nil,
	// opens the follow-up row in the same atomic unit. Returns false when
	// the close matched nothing, in which case next is not opened.
	Transition(ctx context.Context, requestID, stepID string, status models.TrackingStatus, actionUserID, notes string, next *models.ApprovalTracking) (bool, error)

	// CurrentPending returns the request's PENDING row, or nil.
	CurrentPending(ctx context.Context, requestID string) (*models.ApprovalTracking, error)

	// HistoryByRequest returns all rows for a request, oldest first.
	HistoryByRequest(ctx context.Context, requestID string) ([]*models.ApprovalTracking, error)

	List(ctx context.Context, opts ListTrackingsOptions) ([]*models.ApprovalTracking, int64, error)

	// ListPendingBefore returns PENDING rows created before the cutoff,
	// used by the reminder collaborator.
	ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.ApprovalTracking, error)
}
