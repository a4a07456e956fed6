// Package memory provides an in-memory persistence implementation used by
// unit tests and local development. It honors the same invariants as the
// PostgreSQL implementation, including the single-PENDING-row guard and the
// atomic close/open transition.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/persistence"
)

type Persistence struct {
	workflowRepo *WorkflowRepository
	trackingRepo *TrackingRepository
}

func NewPersistence() *Persistence {
	workflows := &WorkflowRepository{
		workflows: make(map[string]*models.Workflow),
		steps:     make(map[string]*models.WorkflowStep),
	}

	return &Persistence{
		workflowRepo: workflows,
		trackingRepo: &TrackingRepository{},
	}
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) TrackingRepository() persistence.TrackingRepository {
	return p.trackingRepo
}

func (p *Persistence) HealthCheck(ctx context.Context) error { return nil }

func (p *Persistence) Close(ctx context.Context) error { return nil }

type WorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[string]*models.Workflow
	steps     map[string]*models.WorkflowStep
}

func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if existing, ok := r.workflows[workflow.ID]; ok {
		for _, step := range existing.Steps {
			if retired, ok := r.steps[step.ID]; ok {
				retired.Active = false
			}
		}
	}

	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.WorkflowID = workflow.ID
		step.Active = true

		// Index a clone: later caller mutation must not alias into the store.
		indexed := *step
		r.steps[step.ID] = &indexed
	}

	r.workflows[workflow.ID] = cloneWorkflow(workflow)

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflow, ok := r.workflows[id]
	if !ok {
		return nil, persistence.NewStoreError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow), nil
}

func (r *WorkflowRepository) List(ctx context.Context, opts persistence.ListWorkflowsOptions) ([]*models.Workflow, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Workflow, 0)

	for _, workflow := range r.workflows {
		if opts.Type != nil && workflow.Type != *opts.Type {
			continue
		}

		if opts.Active != nil && workflow.Active != *opts.Active {
			continue
		}

		if opts.Keyword != "" {
			keyword := strings.ToLower(opts.Keyword)
			if !strings.Contains(strings.ToLower(workflow.Name), keyword) &&
				!strings.Contains(strings.ToLower(workflow.Description), keyword) {
				continue
			}
		}

		matched = append(matched, cloneWorkflow(workflow))
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	if opts.Offset >= len(matched) {
		return []*models.Workflow{}, total, nil
	}

	end := opts.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[opts.Offset:end], total, nil
}

func (r *WorkflowRepository) ListActiveByType(ctx context.Context, workflowType models.WorkflowType) ([]*models.Workflow, error) {
	active := true
	workflows, _, err := r.List(ctx, persistence.ListWorkflowsOptions{
		Type:   &workflowType,
		Active: &active,
		Limit:  1 << 20,
	})

	return workflows, err
}

func (r *WorkflowRepository) StepByID(ctx context.Context, stepID string) (*models.WorkflowStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[stepID]
	if !ok {
		return nil, persistence.NewStoreError("StepByID", stepID, persistence.ErrStepNotFound)
	}

	copied := *step

	return &copied, nil
}

func cloneWorkflow(workflow *models.Workflow) *models.Workflow {
	copied := *workflow
	copied.Steps = make([]*models.WorkflowStep, 0, len(workflow.Steps))

	for _, step := range workflow.Steps {
		stepCopy := *step
		copied.Steps = append(copied.Steps, &stepCopy)
	}

	copied.Predicate = append(models.Predicate(nil), workflow.Predicate...)

	return &copied
}

// TrackingRepository keeps ledger rows in memory. A single mutex serializes
// transitions, which stands in for the transactional guard of the SQL store.
type TrackingRepository struct {
	mu   sync.Mutex
	rows []*models.ApprovalTracking
}

func (r *TrackingRepository) OpenPending(ctx context.Context, row *models.ApprovalTracking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.openLocked(row)
}

func (r *TrackingRepository) openLocked(row *models.ApprovalTracking) error {
	for _, existing := range r.rows {
		if existing.RequestID == row.RequestID && existing.Status == models.TrackingStatusPending {
			return persistence.NewRequestStoreError("OpenPending", row.RequestID, persistence.ErrPendingAlreadyExists)
		}
	}

	now := time.Now().UTC()

	if row.ID == "" {
		row.ID = uuid.New().String()
	}

	row.Status = models.TrackingStatusPending
	row.CreatedAt = now
	row.UpdatedAt = now

	copied := *row
	r.rows = append(r.rows, &copied)

	return nil
}

func (r *TrackingRepository) closeLocked(requestID, stepID string, status models.TrackingStatus, actionUserID, notes string) bool {
	for _, row := range r.rows {
		if row.RequestID == requestID && row.StepID == stepID && row.Status == models.TrackingStatusPending {
			now := time.Now().UTC()
			row.Status = status
			row.ActionUserID = actionUserID
			row.ActionAt = &now
			row.Notes = notes
			row.UpdatedAt = now

			return true
		}
	}

	return false
}

func (r *TrackingRepository) ClosePending(ctx context.Context, requestID, stepID string, status models.TrackingStatus, actionUserID, notes string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closeLocked(requestID, stepID, status, actionUserID, notes), nil
}

func (r *TrackingRepository) Transition(ctx context.Context, requestID, stepID string, status models.TrackingStatus, actionUserID, notes string, next *models.ApprovalTracking) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closeLocked(requestID, stepID, status, actionUserID, notes) {
		return false, nil
	}

	if next != nil {
		err := r.openLocked(next)
		if err != nil {
			return false, err
		}
	}

	return true, nil
}

func (r *TrackingRepository) CurrentPending(ctx context.Context, requestID string) (*models.ApprovalTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if row.RequestID == requestID && row.Status == models.TrackingStatusPending {
			copied := *row

			return &copied, nil
		}
	}

	return nil, nil
}

func (r *TrackingRepository) HistoryByRequest(ctx context.Context, requestID string) ([]*models.ApprovalTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := make([]*models.ApprovalTracking, 0)

	for _, row := range r.rows {
		if row.RequestID == requestID {
			copied := *row
			history = append(history, &copied)
		}
	}

	return history, nil
}

func (r *TrackingRepository) List(ctx context.Context, opts persistence.ListTrackingsOptions) ([]*models.ApprovalTracking, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*models.ApprovalTracking, 0)

	for _, row := range r.rows {
		if opts.RequestID != "" && row.RequestID != opts.RequestID {
			continue
		}

		if opts.AssignedUserID != "" && row.AssignedUserID != opts.AssignedUserID {
			continue
		}

		if opts.Status != nil && row.Status != *opts.Status {
			continue
		}

		copied := *row
		matched = append(matched, &copied)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	if opts.Offset >= len(matched) {
		return []*models.ApprovalTracking{}, total, nil
	}

	end := opts.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[opts.Offset:end], total, nil
}

func (r *TrackingRepository) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]*models.ApprovalTracking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*models.ApprovalTracking, 0)

	for _, row := range r.rows {
		if row.Status == models.TrackingStatusPending && row.CreatedAt.Before(cutoff) {
			copied := *row
			matched = append(matched, &copied)
		}
	}

	return matched, nil
}
