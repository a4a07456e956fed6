package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no workflow exists for the identifier
	// or selection conditions.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrStepNotFound indicates a workflow step was not found.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrTrackingNotFound indicates a ledger row was not found.
	ErrTrackingNotFound = errors.New("approval tracking not found")

	// ErrPendingAlreadyExists indicates the request already has a PENDING
	// ledger row; opening a second one would break the core invariant.
	ErrPendingAlreadyExists = errors.New("request already has a pending approval step")
)

// StoreError wraps persistence errors with operation and entity context.
type StoreError struct {
	Op        string
	EntityID  string
	RequestID string
	Err       error
}

func (e *StoreError) Error() string {
	target := e.EntityID
	if e.RequestID != "" {
		target = "request " + e.RequestID
	}

	return fmt.Sprintf("%s failed for %s: %v", e.Op, target, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewStoreError(op, entityID string, err error) *StoreError {
	return &StoreError{Op: op, EntityID: entityID, Err: err}
}

func NewRequestStoreError(op, requestID string, err error) *StoreError {
	return &StoreError{Op: op, RequestID: requestID, Err: err}
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

func IsTrackingNotFound(err error) bool {
	return errors.Is(err, ErrTrackingNotFound)
}

func IsPendingAlreadyExists(err error) bool {
	return errors.Is(err, ErrPendingAlreadyExists)
}
