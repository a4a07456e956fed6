package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/persistence"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow template service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflow templates.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	Type    *models.WorkflowType
	Active  *bool
	Keyword string
}

// ListWorkflowsResponse contains the result of listing workflow templates.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflow templates with filtering and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	opts := persistence.ListWorkflowsOptions{
		Limit:   req.Limit,
		Offset:  req.Offset,
		Type:    req.Type,
		Active:  req.Active,
		Keyword: req.Keyword,
	}

	workflows, total, err := w.persistence.WorkflowRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   workflows,
		TotalCount:  total,
		HasNextPage: int64(req.Offset+len(workflows)) < total,
	}, nil
}

func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Type != nil && !req.Type.Valid() {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_WORKFLOW_TYPE",
			fmt.Sprintf("invalid workflow type '%s'", *req.Type),
			models.ErrInvalidWorkflowType,
		)
	}

	req.Keyword = strings.TrimSpace(req.Keyword)

	return nil
}

// FetchByID retrieves a workflow template by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow template. Every step gets a fresh id; ledger
// rows will reference these ids for the template's whole lifetime.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if strings.TrimSpace(workflow.Name) == "" {
		return nil, ErrWorkflowNameRequired
	}

	if len(workflow.Steps) == 0 {
		return nil, ErrStepsRequired
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.Active = true
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	w.stampSteps(workflow)

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError("Create", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	err := w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update modifies an existing workflow template. The submitted steps replace
// the active set; the previous steps are retired, not deleted, so in-flight
// requests keep valid step references.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, ErrWorkflowNotFound
	}

	if len(workflow.Steps) == 0 {
		return nil, ErrStepsRequired
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.CreatedBy = existing.CreatedBy
	workflow.UpdatedAt = time.Now().UTC()

	w.stampSteps(workflow)

	if err := workflow.Validate(); err != nil {
		return nil, NewValidationError("Update", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	err = w.persistence.WorkflowRepository().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Deactivate retires a workflow template from selection. The template and its
// steps stay readable; the orchestrator only selects active ones.
func (w *Workflow) Deactivate(ctx context.Context, workflowID, updatedBy string) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, ErrWorkflowNotFound
	}

	existing.Active = false
	existing.UpdatedBy = updatedBy
	existing.UpdatedAt = time.Now().UTC()

	err = w.persistence.WorkflowRepository().Save(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate workflow: %w", err)
	}

	return existing, nil
}

func (w *Workflow) stampSteps(workflow *models.Workflow) {
	for _, step := range workflow.Steps {
		if step.ID == "" {
			step.ID = uuid.New().String()
		}

		step.WorkflowID = workflow.ID
		step.Active = true
	}
}
