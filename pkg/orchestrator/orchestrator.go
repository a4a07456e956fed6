// Package orchestrator implements the approval workflow state machine. It
// consumes lifecycle events, mutates the approval tracking ledger through
// guarded atomic transitions and emits follow-up lifecycle events.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talentflow/approvals/pkg/directory"
	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/talentflow/approvals/pkg/persistence"
)

type Orchestrator struct {
	workflows persistence.WorkflowRepository
	ledger    persistence.TrackingRepository
	resolver  directory.Resolver
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
}

func New(
	store persistence.Persistence,
	resolver directory.Resolver,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Orchestrator {
	return &Orchestrator{
		workflows: store.WorkflowRepository(),
		ledger:    store.TrackingRepository(),
		resolver:  resolver,
		publisher: publisher,
		logger:    logger.With("module", "orchestrator"),
		tracer:    tracer,
	}
}

// HandleSubmission processes REQUEST_SUBMITTED: selects a workflow when none
// was named, resolves the first approver and opens the step-1 PENDING row.
// No follow-up event is emitted; the owning service already holds the
// submitted status locally.
func (o *Orchestrator) HandleSubmission(ctx context.Context, event *events.RequestSubmitted) error {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.submission",
		attribute.String(otelhelper.RequestIDKey, event.RequestID))
	defer span.End()

	logger := o.logger.With("request_id", event.RequestID)

	history, err := o.ledger.HistoryByRequest(ctx, event.RequestID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	switch models.DeriveRequestState(history) {
	case models.RequestStateInProgress:
		// A pending row already exists: duplicate delivery, or the
		// resubmission after a return (the return already opened the
		// target step).
		logger.InfoContext(ctx, "Submission ignored, request already in progress")

		return nil
	case models.RequestStateCompleted, models.RequestStateRejected, models.RequestStateCancelled:
		logger.InfoContext(ctx, "Submission ignored, request already terminal")

		return nil
	case models.RequestStateNotStarted:
	}

	workflow, err := o.selectWorkflow(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	firstStep := workflow.FirstStep()
	if firstStep == nil {
		err = fmt.Errorf("workflow %s has no first step", workflow.ID)
		otelhelper.SetError(span, err)

		return err
	}

	assignee, err := o.resolver.Resolve(ctx, firstStep.PositionID, event.AuthToken)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to resolve approver for step 1: %w", err)
	}

	err = o.ledger.OpenPending(ctx, &models.ApprovalTracking{
		RequestID:      event.RequestID,
		WorkflowID:     workflow.ID,
		StepID:         firstStep.ID,
		StepOrder:      firstStep.StepOrder,
		AssignedUserID: assignee,
	})
	if err != nil {
		if persistence.IsPendingAlreadyExists(err) {
			logger.InfoContext(ctx, "Submission raced a concurrent open, ignoring")

			return nil
		}

		otelhelper.SetError(span, err)

		return err
	}

	logger.InfoContext(ctx, "Approval workflow started",
		"workflow_id", workflow.ID, "step_id", firstStep.ID, "assignee", assignee)

	return nil
}

// selectWorkflow honors an explicit workflow id; otherwise it picks the most
// recently created active template of the request's type whose predicate
// matches every submitted attribute.
func (o *Orchestrator) selectWorkflow(ctx context.Context, event *events.RequestSubmitted) (*models.Workflow, error) {
	if event.WorkflowID != "" {
		return o.workflows.GetByID(ctx, event.WorkflowID)
	}

	attributes := make(map[string]string, len(event.Attributes)+2)
	for key, value := range event.Attributes {
		attributes[key] = value
	}

	if event.DepartmentID != "" {
		attributes["department_id"] = event.DepartmentID
	}

	if event.CandidateID != "" {
		attributes["candidate_id"] = event.CandidateID
	}

	candidates, err := o.workflows.ListActiveByType(ctx, workflowTypeFor(event.RequestType))
	if err != nil {
		return nil, err
	}

	// Candidates arrive newest first; the first predicate match wins.
	for _, candidate := range candidates {
		if candidate.Predicate.Matches(attributes) {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("request %s (%s): %w", event.RequestID, event.RequestType, ErrNoWorkflowMatched)
}

func workflowTypeFor(requestType events.RequestType) models.WorkflowType {
	switch requestType {
	case events.RequestTypeRecruitment, events.RequestTypeOffer:
		return models.WorkflowTypeRecruitment
	default:
		return models.WorkflowTypeGeneral
	}
}

// DecideInput carries one approver decision for the request's current step.
type DecideInput struct {
	RequestID        string
	StepID           string
	Decision         events.Decision
	ActorUserID      string
	Notes            string
	Reason           string
	ReturnedToStepID string
	DelegateUserID   string
	RequestType      events.RequestType
	AuthToken        string
}

// Decide applies an approve/reject/return/delegate decision. Duplicate
// deliveries surface as ErrStaleEvent and leave the ledger untouched;
// decisions naming a step other than the current pending one surface as
// ErrStepConflict.
func (o *Orchestrator) Decide(ctx context.Context, input DecideInput) error {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.decision",
		attribute.String(otelhelper.RequestIDKey, input.RequestID),
		attribute.String(otelhelper.StepIDKey, input.StepID),
		attribute.String(otelhelper.DecisionKey, string(input.Decision)))
	defer span.End()

	pending, err := o.ledger.CurrentPending(ctx, input.RequestID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if pending == nil || pending.StepID != input.StepID {
		return o.classifyMismatch(ctx, input, pending)
	}

	workflow, err := o.workflows.GetByID(ctx, pending.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	switch input.Decision {
	case events.DecisionApprove:
		return o.approve(ctx, input, pending, workflow)
	case events.DecisionReject:
		return o.reject(ctx, input, pending)
	case events.DecisionReturn:
		return o.returnToStep(ctx, input, pending, workflow)
	case events.DecisionDelegate:
		return o.delegate(ctx, input, pending)
	default:
		return fmt.Errorf("unknown decision %q", input.Decision)
	}
}

// classifyMismatch separates duplicate deliveries (the named step already
// reached a terminal status) from genuine conflicts.
func (o *Orchestrator) classifyMismatch(ctx context.Context, input DecideInput, pending *models.ApprovalTracking) error {
	history, err := o.ledger.HistoryByRequest(ctx, input.RequestID)
	if err != nil {
		return err
	}

	if len(history) == 0 {
		return fmt.Errorf("request %s: %w", input.RequestID, ErrNoPendingStep)
	}

	for _, row := range history {
		if row.StepID == input.StepID && row.Status.Terminal() {
			o.logger.InfoContext(ctx, "Dropping stale decision",
				"request_id", input.RequestID, "step_id", input.StepID, "row_status", row.Status)

			return fmt.Errorf("request %s step %s: %w", input.RequestID, input.StepID, ErrStaleEvent)
		}
	}

	pendingStep := ""
	if pending != nil {
		pendingStep = pending.StepID
	}

	return fmt.Errorf("request %s: decision for step %s, pending step is %q: %w",
		input.RequestID, input.StepID, pendingStep, ErrStepConflict)
}

func (o *Orchestrator) approve(ctx context.Context, input DecideInput, pending *models.ApprovalTracking, workflow *models.Workflow) error {
	currentStep := workflow.StepAtOrder(pending.StepOrder)
	if currentStep == nil || workflow.IsLastStep(currentStep) {
		// Last step (or the step set was replaced underneath this attempt):
		// approving closes the workflow.
		applied, err := o.ledger.Transition(ctx, input.RequestID, input.StepID,
			models.TrackingStatusApproved, input.ActorUserID, input.Notes, nil)
		if err != nil {
			return err
		}

		if !applied {
			return o.staleTransition(ctx, input)
		}

		completed := events.WorkflowCompleted{
			BaseEvent: events.NewBaseEvent(events.WorkflowCompletedEvent, input.RequestType, input.RequestID),
		}
		completed.WorkflowID = workflow.ID
		completed.ActorUserID = input.ActorUserID
		completed.Notes = input.Notes

		return o.publish(ctx, input.RequestID, completed)
	}

	nextStep := workflow.NextStep(currentStep)

	assignee, err := o.resolver.Resolve(ctx, nextStep.PositionID, input.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to resolve approver for step %d: %w", nextStep.StepOrder, err)
	}

	next := &models.ApprovalTracking{
		RequestID:      input.RequestID,
		WorkflowID:     workflow.ID,
		StepID:         nextStep.ID,
		StepOrder:      nextStep.StepOrder,
		AssignedUserID: assignee,
	}

	applied, err := o.ledger.Transition(ctx, input.RequestID, input.StepID,
		models.TrackingStatusApproved, input.ActorUserID, input.Notes, next)
	if err != nil {
		return err
	}

	if !applied {
		return o.staleTransition(ctx, input)
	}

	stepApproved := events.StepApproved{
		BaseEvent:  events.NewBaseEvent(events.StepApprovedEvent, input.RequestType, input.RequestID),
		StepID:     input.StepID,
		NextStepID: nextStep.ID,
	}
	stepApproved.WorkflowID = workflow.ID
	stepApproved.ActorUserID = input.ActorUserID
	stepApproved.CurrentStepID = nextStep.ID
	stepApproved.Notes = input.Notes

	return o.publish(ctx, input.RequestID, stepApproved)
}

func (o *Orchestrator) reject(ctx context.Context, input DecideInput, pending *models.ApprovalTracking) error {
	applied, err := o.ledger.Transition(ctx, input.RequestID, input.StepID,
		models.TrackingStatusRejected, input.ActorUserID, input.Reason, nil)
	if err != nil {
		return err
	}

	if !applied {
		return o.staleTransition(ctx, input)
	}

	rejected := events.RequestRejected{
		BaseEvent: events.NewBaseEvent(events.RequestRejectedEvent, input.RequestType, input.RequestID),
		StepID:    input.StepID,
	}
	rejected.WorkflowID = pending.WorkflowID
	rejected.ActorUserID = input.ActorUserID
	rejected.Reason = input.Reason

	return o.publish(ctx, input.RequestID, rejected)
}

func (o *Orchestrator) returnToStep(ctx context.Context, input DecideInput, pending *models.ApprovalTracking, workflow *models.Workflow) error {
	target := workflow.FirstStep()

	if input.ReturnedToStepID != "" {
		target = workflow.StepByID(input.ReturnedToStepID)
		if target == nil {
			return fmt.Errorf("request %s: step %s: %w",
				input.RequestID, input.ReturnedToStepID, ErrInvalidReturnTarget)
		}
	}

	if target == nil {
		return fmt.Errorf("workflow %s has no first step", workflow.ID)
	}

	// A return resets to an earlier step or re-opens the current one; a
	// forward target would skip unresolved steps.
	if target.StepOrder > pending.StepOrder {
		return fmt.Errorf("request %s: step %s is ahead of the pending step: %w",
			input.RequestID, target.ID, ErrInvalidReturnTarget)
	}

	assignee, err := o.resolver.Resolve(ctx, target.PositionID, input.AuthToken)
	if err != nil {
		return fmt.Errorf("failed to resolve approver for step %d: %w", target.StepOrder, err)
	}

	next := &models.ApprovalTracking{
		RequestID:      input.RequestID,
		WorkflowID:     workflow.ID,
		StepID:         target.ID,
		StepOrder:      target.StepOrder,
		AssignedUserID: assignee,
	}

	applied, err := o.ledger.Transition(ctx, input.RequestID, input.StepID,
		models.TrackingStatusReturned, input.ActorUserID, input.Reason, next)
	if err != nil {
		return err
	}

	if !applied {
		return o.staleTransition(ctx, input)
	}

	returned := events.RequestReturned{
		BaseEvent:        events.NewBaseEvent(events.RequestReturnedEvent, input.RequestType, input.RequestID),
		StepID:           input.StepID,
		ReturnedToStepID: target.ID,
	}
	returned.WorkflowID = workflow.ID
	returned.ActorUserID = input.ActorUserID
	returned.Reason = input.Reason

	return o.publish(ctx, input.RequestID, returned)
}

func (o *Orchestrator) delegate(ctx context.Context, input DecideInput, pending *models.ApprovalTracking) error {
	if input.DelegateUserID == "" {
		return fmt.Errorf("request %s: %w", input.RequestID, ErrDelegateRequired)
	}

	// Delegation re-opens the same step for the chosen user; the attempt
	// chain stays on one step and the single-PENDING invariant holds.
	next := &models.ApprovalTracking{
		RequestID:      input.RequestID,
		WorkflowID:     pending.WorkflowID,
		StepID:         pending.StepID,
		StepOrder:      pending.StepOrder,
		AssignedUserID: input.DelegateUserID,
	}

	applied, err := o.ledger.Transition(ctx, input.RequestID, input.StepID,
		models.TrackingStatusDelegated, input.ActorUserID, input.Notes, next)
	if err != nil {
		return err
	}

	if !applied {
		return o.staleTransition(ctx, input)
	}

	delegated := events.StepDelegated{
		BaseEvent:      events.NewBaseEvent(events.StepDelegatedEvent, input.RequestType, input.RequestID),
		StepID:         input.StepID,
		DelegateUserID: input.DelegateUserID,
	}
	delegated.WorkflowID = pending.WorkflowID
	delegated.ActorUserID = input.ActorUserID
	delegated.Notes = input.Notes

	return o.publish(ctx, input.RequestID, delegated)
}

// Cancel withdraws a request on behalf of the requester. After a terminal
// status it is an idempotent no-op, never an error.
func (o *Orchestrator) Cancel(ctx context.Context, requestID string, requestType events.RequestType, actorUserID, reason string) error {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.cancel",
		attribute.String(otelhelper.RequestIDKey, requestID))
	defer span.End()

	pending, err := o.ledger.CurrentPending(ctx, requestID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if pending == nil {
		o.logger.InfoContext(ctx, "Cancel ignored, no pending step", "request_id", requestID)

		return nil
	}

	closed, err := o.ledger.ClosePending(ctx, requestID, pending.StepID,
		models.TrackingStatusCancelled, actorUserID, reason)
	if err != nil {
		return err
	}

	if !closed {
		o.logger.InfoContext(ctx, "Cancel raced another transition, ignoring", "request_id", requestID)

		return nil
	}

	cancelled := events.RequestCancelled{
		BaseEvent: events.NewBaseEvent(events.RequestCancelledEvent, requestType, requestID),
		StepID:    pending.StepID,
	}
	cancelled.WorkflowID = pending.WorkflowID
	cancelled.ActorUserID = actorUserID
	cancelled.Reason = reason

	return o.publish(ctx, requestID, cancelled)
}

// RequestState derives the request's logical state and current pending row
// from the ledger.
func (o *Orchestrator) RequestState(ctx context.Context, requestID string) (models.RequestState, *models.ApprovalTracking, error) {
	history, err := o.ledger.HistoryByRequest(ctx, requestID)
	if err != nil {
		return "", nil, err
	}

	state := models.DeriveRequestState(history)
	if state != models.RequestStateInProgress {
		return state, nil, nil
	}

	pending, err := o.ledger.CurrentPending(ctx, requestID)
	if err != nil {
		return "", nil, err
	}

	return state, pending, nil
}

func (o *Orchestrator) staleTransition(ctx context.Context, input DecideInput) error {
	o.logger.InfoContext(ctx, "Transition raced a duplicate, ledger untouched",
		"request_id", input.RequestID, "step_id", input.StepID)

	return fmt.Errorf("request %s step %s: %w", input.RequestID, input.StepID, ErrStaleEvent)
}

func (o *Orchestrator) publish(ctx context.Context, requestID string, event eventbus.Event) error {
	err := o.publisher.Publish(ctx, requestID, event)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.GetType(), err)
	}

	return nil
}
