package models

import "time"

type TrackingStatus string

const (
	TrackingStatusPending   TrackingStatus = "PENDING"
	TrackingStatusApproved  TrackingStatus = "APPROVED"
	TrackingStatusRejected  TrackingStatus = "REJECTED"
	TrackingStatusCancelled TrackingStatus = "CANCELLED"
	TrackingStatusDelegated TrackingStatus = "DELEGATED"
	TrackingStatusReturned  TrackingStatus = "RETURNED"
)

func (s TrackingStatus) Valid() bool {
	switch s {
	case TrackingStatusPending, TrackingStatusApproved, TrackingStatusRejected,
		TrackingStatusCancelled, TrackingStatusDelegated, TrackingStatusReturned:
		return true
	}

	return false
}

// Terminal reports whether a row in this status is immutable. Every status
// except PENDING is terminal; a row transitions from PENDING to a terminal
// status exactly once.
func (s TrackingStatus) Terminal() bool {
	return s != TrackingStatusPending && s.Valid()
}

// ApprovalTracking is one ledger row: a single attempt at a single step for
// a single request. RequestID is an opaque correlation key into another
// service's store; there is no referential integrity across that boundary.
//
// Invariant: for a given RequestID at most one row is PENDING at any instant.
type ApprovalTracking struct {
	ID             string         `json:"id"`
	RequestID      string         `json:"request_id"`
	WorkflowID     string         `json:"workflow_id"`
	StepID         string         `json:"step_id"`
	StepOrder      int            `json:"step_order"`
	Status         TrackingStatus `json:"status"`
	AssignedUserID string         `json:"assigned_user_id"`
	ActionUserID   string         `json:"action_user_id,omitempty"`
	ActionAt       *time.Time     `json:"action_at,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RequestState is the per-request logical state derived from the ledger, not
// stored anywhere.
type RequestState string

const (
	RequestStateNotStarted RequestState = "NOT_STARTED"
	RequestStateInProgress RequestState = "IN_PROGRESS"
	RequestStateCompleted  RequestState = "COMPLETED"
	RequestStateRejected   RequestState = "REJECTED"
	RequestStateCancelled  RequestState = "CANCELLED"
)

// DeriveRequestState computes the request state from its full ledger history,
// ordered oldest first.
func DeriveRequestState(history []*ApprovalTracking) RequestState {
	if len(history) == 0 {
		return RequestStateNotStarted
	}

	for _, row := range history {
		if row.Status == TrackingStatusPending {
			return RequestStateInProgress
		}
	}

	last := history[len(history)-1]

	switch last.Status {
	case TrackingStatusRejected:
		return RequestStateRejected
	case TrackingStatusCancelled:
		return RequestStateCancelled
	default:
		return RequestStateCompleted
	}
}
