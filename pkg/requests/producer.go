package requests

import (
	"context"
	"fmt"

	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
)

// Submission describes a draft (or returned) request becoming active.
type Submission struct {
	RequestID   string
	RequestType events.RequestType
	// WorkflowID pins a template explicitly; leave empty to let the
	// orchestrator select one from the attributes.
	WorkflowID   string
	RequesterID  string
	OwnerUserID  string
	DepartmentID string
	CandidateID  string
	Attributes   map[string]string
	AuthToken    string
}

// Producer emits the owning service's half of the approval saga.
type Producer struct {
	publisher eventbus.EventPublisher
}

func NewProducer(publisher eventbus.EventPublisher) *Producer {
	return &Producer{publisher: publisher}
}

// Submit emits REQUEST_SUBMITTED. The caller flips its local status to
// PENDING_APPROVAL after a successful publish; delivery is at-least-once and
// the orchestrator's submission handler tolerates duplicates.
func (p *Producer) Submit(ctx context.Context, current Status, submission Submission) (Status, error) {
	if !CanSubmit(current) {
		return current, fmt.Errorf("%w: cannot submit from %s", ErrInvalidStatusTransition, current)
	}

	event := events.RequestSubmitted{
		BaseEvent:  events.NewBaseEvent(events.RequestSubmittedEvent, submission.RequestType, submission.RequestID),
		Attributes: submission.Attributes,
	}
	event.WorkflowID = submission.WorkflowID
	event.RequesterID = submission.RequesterID
	event.OwnerUserID = submission.OwnerUserID
	event.DepartmentID = submission.DepartmentID
	event.CandidateID = submission.CandidateID
	event.RequestStatus = string(StatusPendingApproval)
	event.AuthToken = submission.AuthToken

	err := p.publisher.Publish(ctx, submission.RequestID, event)
	if err != nil {
		return current, fmt.Errorf("failed to publish submission: %w", err)
	}

	return StatusPendingApproval, nil
}

// Cancel emits the requester's withdrawal.
func (p *Producer) Cancel(ctx context.Context, requestID string, requestType events.RequestType, requesterID, reason string) error {
	event := events.RequestCancelRequested{
		BaseEvent: events.NewBaseEvent(events.RequestCancelRequestedEvent, requestType, requestID),
	}
	event.ActorUserID = requesterID
	event.Reason = reason

	err := p.publisher.Publish(ctx, requestID, event)
	if err != nil {
		return fmt.Errorf("failed to publish cancel request: %w", err)
	}

	return nil
}
