// Package services provides the API-facing operations over workflow templates
// and the approval tracking ledger, with standardized error types.
package services

import (
	"errors"
	"fmt"

	"github.com/talentflow/approvals/pkg/orchestrator"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrStepsRequired        = errors.New("workflow must have at least one step")
	ErrInvalidDecision      = errors.New("invalid decision")
	ErrReasonRequired       = errors.New("reason is required for this decision")
	ErrDelegateRequired     = errors.New("delegate user is required for delegate decisions")
	ErrEmptyRequestID       = errors.New("request ID cannot be empty")
	ErrEmptyStepID          = errors.New("step ID cannot be empty")
	ErrEmptyActorID         = errors.New("actor user ID cannot be empty")

	// Business Logic Conflicts (409 Conflict).
	ErrStepConflict = orchestrator.ErrStepConflict
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrStepsRequired) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrDelegateRequired) ||
		errors.Is(err, ErrEmptyRequestID) ||
		errors.Is(err, ErrEmptyStepID) ||
		errors.Is(err, ErrEmptyActorID) ||
		errors.Is(err, orchestrator.ErrInvalidReturnTarget)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStepConflict) ||
		errors.Is(err, orchestrator.ErrNoPendingStep)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
