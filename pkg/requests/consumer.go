package requests

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
)

// LocalRequest is the slice of the owning service's entity the consumer
// maintains: the denormalized status plus the cached current-step pointer.
type LocalRequest struct {
	RequestID     string
	Status        Status
	CurrentStepID string
	Reason        string
}

// Store abstracts the owning service's own persistence. Implementations
// live with the owning service; the engine repo ships only the contract and
// the event wiring.
type Store interface {
	Get(ctx context.Context, requestID string) (*LocalRequest, error)
	Update(ctx context.Context, request *LocalRequest) error
}

// Consumer applies orchestrator outcomes to the owning service's store.
type Consumer struct {
	store  Store
	logger *slog.Logger
}

func NewConsumer(store Store, logger *slog.Logger) *Consumer {
	return &Consumer{
		store:  store,
		logger: logger.With("module", "requests-consumer"),
	}
}

// Register subscribes the consumer to the lifecycle events that drive the
// owning service's status.
func (c *Consumer) Register(bus eventbus.EventSubscriber) error {
	for _, eventType := range []events.EventType{
		events.WorkflowCompletedEvent,
		events.RequestRejectedEvent,
		events.RequestReturnedEvent,
		events.RequestCancelledEvent,
		events.StepApprovedEvent,
	} {
		err := bus.Handle(eventType, c.handle)
		if err != nil {
			return err
		}
	}

	return nil
}

func (c *Consumer) handle(ctx context.Context, event any) error {
	switch typed := event.(type) {
	case *events.WorkflowCompleted:
		// Completion clears the cached step pointer along with the status.
		return c.apply(ctx, typed.RequestID, typed.Type, "", "")
	case *events.RequestRejected:
		return c.apply(ctx, typed.RequestID, typed.Type, "", typed.Reason)
	case *events.RequestReturned:
		return c.apply(ctx, typed.RequestID, typed.Type, typed.ReturnedToStepID, typed.Reason)
	case *events.RequestCancelled:
		return c.apply(ctx, typed.RequestID, typed.Type, "", typed.Reason)
	case *events.StepApproved:
		// Informational only for status purposes, but refresh the cached
		// current-step pointer for the UI.
		return c.refreshStep(ctx, typed.RequestID, typed.NextStepID)
	default:
		return fmt.Errorf("unexpected event %T", event)
	}
}

func (c *Consumer) apply(ctx context.Context, requestID string, eventType events.EventType, currentStepID, reason string) error {
	request, err := c.store.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to load request %s: %w", requestID, err)
	}

	next, applied, err := Apply(request.Status, eventType)
	if err != nil {
		return err
	}

	if !applied {
		c.logger.InfoContext(ctx, "Lifecycle event ignored, status already advanced",
			"request_id", requestID, "event_type", eventType, "status", request.Status)

		return nil
	}

	request.Status = next
	request.CurrentStepID = currentStepID
	request.Reason = reason

	err = c.store.Update(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", requestID, err)
	}

	c.logger.InfoContext(ctx, "Request status updated",
		"request_id", requestID, "event_type", eventType, "status", next)

	return nil
}

func (c *Consumer) refreshStep(ctx context.Context, requestID, stepID string) error {
	request, err := c.store.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to load request %s: %w", requestID, err)
	}

	if request.Status != StatusPendingApproval {
		return nil
	}

	request.CurrentStepID = stepID

	return c.store.Update(ctx, request)
}
