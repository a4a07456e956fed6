// Package requests is the owning-service side of the approval saga: the
// explicit status transition table driven by lifecycle events, a producer
// emitting submission and cancel events, and a reference consumer applying
// orchestrator outcomes to the owning service's local store.
//
// The owning service's status and current-step fields are a UI cache only;
// the approval tracking ledger is the source of truth for what is pending.
package requests

import (
	"errors"
	"fmt"

	"github.com/talentflow/approvals/pkg/events"
)

// Status is the owning service's denormalized view of a request.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusRejected        Status = "REJECTED"
	StatusReturned        Status = "RETURNED"
	StatusCancelled       Status = "CANCELLED"
)

var ErrInvalidStatusTransition = errors.New("invalid request status transition")

// transitions is the owning-service half of the saga, keyed by the lifecycle
// event type and the status the request currently holds.
var transitions = map[events.EventType]map[Status]Status{
	events.WorkflowCompletedEvent: {
		StatusPendingApproval: StatusApproved,
	},
	events.RequestRejectedEvent: {
		StatusPendingApproval: StatusRejected,
	},
	events.RequestReturnedEvent: {
		StatusPendingApproval: StatusReturned,
	},
	events.RequestCancelledEvent: {
		StatusPendingApproval: StatusCancelled,
	},
}

// Apply computes the status an owning service moves to when it observes a
// lifecycle event. Observing an event in a status it does not transition
// from (duplicate delivery after the transition already happened) returns
// the current status unchanged and applied=false.
func Apply(current Status, eventType events.EventType) (Status, bool, error) {
	byStatus, ok := transitions[eventType]
	if !ok {
		return current, false, fmt.Errorf("%w: event %s does not drive request status", ErrInvalidStatusTransition, eventType)
	}

	next, ok := byStatus[current]
	if !ok {
		return current, false, nil
	}

	return next, true, nil
}

// CanSubmit reports whether a request in the given status may emit
// REQUEST_SUBMITTED. Drafts and returned requests are submittable; a
// returned request resubmits with its original request id and workflow.
func CanSubmit(current Status) bool {
	return current == StatusDraft || current == StatusReturned
}
