// Package models defines the core entities of the approval workflow engine:
// workflow templates, their ordered steps and the approval tracking ledger.
package models

import (
	"errors"
	"fmt"
	"time"
)

type WorkflowType string

const (
	WorkflowTypeRecruitment WorkflowType = "recruitment"
	WorkflowTypeExpense     WorkflowType = "expense"
	WorkflowTypeLeave       WorkflowType = "leave"
	WorkflowTypePurchase    WorkflowType = "purchase"
	WorkflowTypeGeneral     WorkflowType = "general"
)

func (t WorkflowType) Valid() bool {
	switch t {
	case WorkflowTypeRecruitment, WorkflowTypeExpense, WorkflowTypeLeave,
		WorkflowTypePurchase, WorkflowTypeGeneral:
		return true
	}

	return false
}

// Workflow is a named, ordered sequence of approval steps with a selection
// predicate. Steps are replaced as a set on edit; rows in the approval
// tracking ledger keep referencing the original step ids for audit.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"       validate:"required,min=3"`
	Description string          `json:"description,omitempty"`
	Type        WorkflowType    `json:"type"       validate:"required"`
	Steps       []*WorkflowStep `json:"steps"`
	Predicate   Predicate       `json:"predicate,omitempty"`
	Active      bool            `json:"active"`
	CreatedBy   string          `json:"created_by,omitempty"`
	UpdatedBy   string          `json:"updated_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// WorkflowStep is one stage of a workflow, bound to an approver position.
type WorkflowStep struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	StepOrder  int    `json:"step_order"`
	PositionID string `json:"position_id" validate:"required"`
	Active     bool   `json:"active"`
}

var (
	ErrNoSteps            = errors.New("workflow must have at least one step")
	ErrInvalidWorkflowType = errors.New("invalid workflow type")
)

// Validate checks the template invariants: a known type and step orders that
// are unique and contiguous starting at 1.
func (w *Workflow) Validate() error {
	if !w.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidWorkflowType, w.Type)
	}

	if len(w.Steps) == 0 {
		return ErrNoSteps
	}

	seen := make(map[int]bool, len(w.Steps))

	for _, step := range w.Steps {
		if step.PositionID == "" {
			return fmt.Errorf("step %d is missing an approver position", step.StepOrder)
		}

		if seen[step.StepOrder] {
			return fmt.Errorf("duplicate step order %d", step.StepOrder)
		}

		seen[step.StepOrder] = true
	}

	for order := 1; order <= len(w.Steps); order++ {
		if !seen[order] {
			return fmt.Errorf("step orders must be contiguous from 1, missing %d", order)
		}
	}

	return nil
}

// StepByID returns the step with the given id, or nil.
func (w *Workflow) StepByID(stepID string) *WorkflowStep {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// StepAtOrder returns the step with the given order, or nil.
func (w *Workflow) StepAtOrder(order int) *WorkflowStep {
	for _, step := range w.Steps {
		if step.StepOrder == order {
			return step
		}
	}

	return nil
}

// FirstStep returns the step with order 1.
func (w *Workflow) FirstStep() *WorkflowStep {
	return w.StepAtOrder(1)
}

// NextStep returns the step following the given one, or nil when the given
// step is the last.
func (w *Workflow) NextStep(current *WorkflowStep) *WorkflowStep {
	return w.StepAtOrder(current.StepOrder + 1)
}

// IsLastStep reports whether the given step closes the workflow.
func (w *Workflow) IsLastStep(step *WorkflowStep) bool {
	return w.NextStep(step) == nil
}
