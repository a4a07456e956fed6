// Package events defines the lifecycle event contracts exchanged between the
// request-owning services and the approval orchestrator.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic is the single logical topic for workflow lifecycle events. Messages
// are keyed by request id so the transport preserves per-request ordering.
const Topic = "approvals.workflow.lifecycle"

const EventKeyMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound events, produced by the owning service or an approver surface.
	RequestSubmittedEvent       EventType = "approval.request.submitted"
	DecisionSubmittedEvent      EventType = "approval.decision.submitted"
	RequestCancelRequestedEvent EventType = "approval.request.cancel_requested"

	// Outbound events, produced by the orchestrator.
	StepApprovedEvent      EventType = "approval.step.approved"
	WorkflowCompletedEvent EventType = "approval.workflow.completed"
	RequestRejectedEvent   EventType = "approval.request.rejected"
	RequestReturnedEvent   EventType = "approval.request.returned"
	RequestCancelledEvent  EventType = "approval.request.cancelled"
	StepDelegatedEvent     EventType = "approval.step.delegated"

	// Produced by the reminder collaborator, consumed by notifications.
	StepReminderEvent EventType = "approval.step.reminder"
)

type RequestType string

const (
	RequestTypeRecruitment RequestType = "RECRUITMENT_REQUEST"
	RequestTypeOffer       RequestType = "OFFER"
)

type Decision string

const (
	DecisionApprove  Decision = "approve"
	DecisionReject   Decision = "reject"
	DecisionReturn   Decision = "return"
	DecisionDelegate Decision = "delegate"
)

// BaseEvent is the shared payload schema carried by every lifecycle event.
// Not every field is meaningful for every type; consumers read what the
// event type defines and ignore the rest.
type BaseEvent struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"event_type"`
	RequestType   RequestType `json:"request_type"`
	RequestID     string      `json:"request_id"`
	WorkflowID    string      `json:"workflow_id,omitempty"`
	CurrentStepID string      `json:"current_step_id,omitempty"`
	ActorUserID   string      `json:"actor_user_id,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	RequestStatus string      `json:"request_status,omitempty"`
	OwnerUserID   string      `json:"owner_user_id,omitempty"`
	RequesterID   string      `json:"requester_id,omitempty"`
	DepartmentID  string      `json:"department_id,omitempty"`
	CandidateID   string      `json:"candidate_id,omitempty"`
	OccurredAt    time.Time   `json:"occurred_at"`

	// AuthToken is forwarded for downstream calls the consumer must make,
	// e.g. resolving approvers against the position directory.
	AuthToken string `json:"auth_token,omitempty"`
}

// EventID exposes the payload id for duplicate-delivery bookkeeping.
func (e BaseEvent) EventID() string { return e.ID }

func NewBaseEvent(eventType EventType, requestType RequestType, requestID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		RequestType: requestType,
		RequestID:   requestID,
		OccurredAt:  time.Now().UTC(),
	}
}

// RequestSubmitted opens (or re-opens, after a return) the approval workflow
// for a request. WorkflowID may be empty, in which case the orchestrator
// selects a template from Attributes.
type RequestSubmitted struct {
	BaseEvent

	// Attributes feed workflow selection (e.g. department, level).
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (e RequestSubmitted) GetType() EventType { return RequestSubmittedEvent }

// DecisionSubmitted carries an approver's decision for the request's current
// pending step.
type DecisionSubmitted struct {
	BaseEvent

	StepID   string   `json:"step_id"`
	Decision Decision `json:"decision"`
	// Approved mirrors Decision for consumers that only care about the
	// binary outcome.
	Approved bool `json:"approved"`
	// ReturnedToStepID optionally targets a return; empty means the
	// workflow's first step.
	ReturnedToStepID string `json:"returned_to_step_id,omitempty"`
	// DelegateUserID names the new assignee for delegate decisions.
	DelegateUserID string `json:"delegate_user_id,omitempty"`
}

func (e DecisionSubmitted) GetType() EventType { return DecisionSubmittedEvent }

// RequestCancelRequested is a requester-initiated withdrawal.
type RequestCancelRequested struct {
	BaseEvent
}

func (e RequestCancelRequested) GetType() EventType { return RequestCancelRequestedEvent }

// StepApproved is informational: an intermediate step was approved and the
// next one opened. Consumed by the notification collaborator only.
type StepApproved struct {
	BaseEvent

	StepID     string `json:"step_id"`
	NextStepID string `json:"next_step_id"`
}

func (e StepApproved) GetType() EventType { return StepApprovedEvent }

// WorkflowCompleted signals the last step was approved. The owning service
// moves its local status to approved and clears its current-step cache.
type WorkflowCompleted struct {
	BaseEvent
}

func (e WorkflowCompleted) GetType() EventType { return WorkflowCompletedEvent }

type RequestRejected struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e RequestRejected) GetType() EventType { return RequestRejectedEvent }

// RequestReturned signals the request was sent back for rework. The owning
// service moves it to an editable status; resubmission re-enters the
// workflow at ReturnedToStepID with the same request id.
type RequestReturned struct {
	BaseEvent

	StepID           string `json:"step_id"`
	ReturnedToStepID string `json:"returned_to_step_id"`
}

func (e RequestReturned) GetType() EventType { return RequestReturnedEvent }

type RequestCancelled struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e RequestCancelled) GetType() EventType { return RequestCancelledEvent }

type StepDelegated struct {
	BaseEvent

	StepID         string `json:"step_id"`
	DelegateUserID string `json:"delegate_user_id"`
}

func (e StepDelegated) GetType() EventType { return StepDelegatedEvent }

// StepReminder nudges the assignee of a step that has been pending longer
// than the reminder threshold.
type StepReminder struct {
	BaseEvent

	StepID         string    `json:"step_id"`
	AssignedUserID string    `json:"assigned_user_id"`
	PendingSince   time.Time `json:"pending_since"`
}

func (e StepReminder) GetType() EventType { return StepReminderEvent }
