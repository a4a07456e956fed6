// Package web provides HTTP request and response types for the approvals API.
package web

import (
	"github.com/talentflow/approvals/pkg/models"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// StepRequest represents one step of a workflow template in a create or
// update body.
type StepRequest struct {
	// ID carries a step over unchanged on update; leave empty for new steps.
	ID         string `json:"id,omitempty"`
	StepOrder  int    `json:"step_order"  validate:"required,min=1"`
	PositionID string `json:"position_id" validate:"required"`
}

// CreateWorkflowRequest represents the request body for creating a workflow
// template.
type CreateWorkflowRequest struct {
	Name        string             `json:"name"        validate:"required,min=3"`
	Description string             `json:"description"`
	Type        string             `json:"type"        validate:"required"`
	Steps       []StepRequest      `json:"steps"       validate:"required,min=1,dive"`
	Predicate   []models.Condition `json:"predicate,omitempty"`
	CreatedBy   string             `json:"created_by"  validate:"required"`
}

// UpdateWorkflowRequest represents the request body for updating a workflow
// template. The steps replace the active set; omitted steps are retired.
type UpdateWorkflowRequest struct {
	Name        *string            `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string            `json:"description,omitempty"`
	Steps       []StepRequest      `json:"steps"                 validate:"required,min=1,dive"`
	Predicate   []models.Condition `json:"predicate,omitempty"`
	Active      *bool              `json:"active,omitempty"`
	UpdatedBy   string             `json:"updated_by"            validate:"required"`
}

// SubmitDecisionRequest represents the request body for an approver decision
// on a request's current pending step.
type SubmitDecisionRequest struct {
	StepID           string `json:"step_id"             validate:"required"`
	Decision         string `json:"decision"            validate:"required,oneof=approve reject return delegate"`
	ActorUserID      string `json:"actor_user_id"       validate:"required"`
	RequestType      string `json:"request_type"`
	Notes            string `json:"notes,omitempty"`
	Reason           string `json:"reason,omitempty"`
	ReturnedToStepID string `json:"returned_to_step_id,omitempty"`
	DelegateUserID   string `json:"delegate_user_id,omitempty"`
}

// CancelRequest represents the request body for a requester-initiated
// withdrawal.
type CancelRequest struct {
	ActorUserID string `json:"actor_user_id" validate:"required"`
	RequestType string `json:"request_type"`
	Reason      string `json:"reason,omitempty"`
}

func stepsFromRequest(steps []StepRequest) []*models.WorkflowStep {
	out := make([]*models.WorkflowStep, 0, len(steps))
	for _, step := range steps {
		out = append(out, &models.WorkflowStep{
			ID:         step.ID,
			StepOrder:  step.StepOrder,
			PositionID: step.PositionID,
		})
	}

	return out
}
