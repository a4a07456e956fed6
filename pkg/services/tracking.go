package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/models"
	"github.com/talentflow/approvals/pkg/orchestrator"
	"github.com/talentflow/approvals/pkg/persistence"
)

var (
	// ErrTrackingNotFound is returned when a ledger row is not found.
	ErrTrackingNotFound = persistence.ErrTrackingNotFound
)

// Decider applies a decision against the tracking ledger in-process.
type Decider interface {
	Decide(ctx context.Context, input orchestrator.DecideInput) error
}

// Tracking exposes the approval tracking ledger read side and accepts approver
// decisions. Decisions are applied in-process through the orchestrator's
// guarded transitions, so stale duplicates and step conflicts surface to the
// caller synchronously. The same transitions stay reachable through decision
// events on the bus; both paths are idempotent at the ledger.
type Tracking struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	decider     Decider
}

// NewTracking creates a new tracking service.
func NewTracking(persistence persistence.Persistence, publisher eventbus.EventPublisher, decider Decider) *Tracking {
	return &Tracking{
		persistence: persistence,
		publisher:   publisher,
		decider:     decider,
	}
}

// ListTrackingsRequest contains options for listing ledger rows.
type ListTrackingsRequest struct {
	// Pagination
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	RequestID      string
	AssignedUserID string
	Status         *models.TrackingStatus
}

// ListTrackingsResponse contains the result of listing ledger rows.
type ListTrackingsResponse struct {
	Trackings   []*models.ApprovalTracking `json:"trackings"`
	TotalCount  int64                      `json:"total_count"`
	HasNextPage bool                       `json:"has_next_page"`
}

// ListTrackings retrieves ledger rows with filtering and pagination. The
// assignee filter combined with the PENDING status is the approver's inbox.
func (t *Tracking) ListTrackings(ctx context.Context, req ListTrackingsRequest) (*ListTrackingsResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil && !req.Status.Valid() {
		return nil, NewValidationError(
			"ListTrackings",
			"INVALID_TRACKING_STATUS",
			fmt.Sprintf("invalid tracking status '%s'", *req.Status),
			ErrInvalidRequest,
		)
	}

	opts := persistence.ListTrackingsOptions{
		Limit:          req.Limit,
		Offset:         req.Offset,
		RequestID:      req.RequestID,
		AssignedUserID: req.AssignedUserID,
		Status:         req.Status,
	}

	trackings, total, err := t.persistence.TrackingRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackings: %w", err)
	}

	return &ListTrackingsResponse{
		Trackings:   trackings,
		TotalCount:  total,
		HasNextPage: int64(req.Offset+len(trackings)) < total,
	}, nil
}

// RequestStateResponse is the derived per-request view: logical state, the
// pending row when one exists and the full attempt history.
type RequestStateResponse struct {
	RequestID string                     `json:"request_id"`
	State     models.RequestState        `json:"state"`
	Pending   *models.ApprovalTracking   `json:"pending,omitempty"`
	History   []*models.ApprovalTracking `json:"history"`
}

// RequestState derives a request's approval state from its ledger history.
func (t *Tracking) RequestState(ctx context.Context, requestID string) (*RequestStateResponse, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, ErrEmptyRequestID
	}

	history, err := t.persistence.TrackingRepository().HistoryByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request history: %w", err)
	}

	if len(history) == 0 {
		return nil, persistence.NewRequestStoreError("RequestState", requestID, ErrTrackingNotFound)
	}

	response := &RequestStateResponse{
		RequestID: requestID,
		State:     models.DeriveRequestState(history),
		History:   history,
	}

	for _, row := range history {
		if row.Status == models.TrackingStatusPending {
			response.Pending = row

			break
		}
	}

	return response, nil
}

// SubmitDecisionRequest carries one approver decision from the API surface.
type SubmitDecisionRequest struct {
	RequestID        string
	RequestType      events.RequestType
	StepID           string
	Decision         events.Decision
	ActorUserID      string
	Notes            string
	Reason           string
	ReturnedToStepID string
	DelegateUserID   string
	AuthToken        string
}

// SubmitDecision validates a decision and applies it against the ledger. A
// successful return means the transition is committed; stale duplicates and
// step conflicts come back as the orchestrator's sentinel errors.
func (t *Tracking) SubmitDecision(ctx context.Context, req SubmitDecisionRequest) error {
	if err := t.validateDecision(&req); err != nil {
		return err
	}

	return t.decider.Decide(ctx, orchestrator.DecideInput{
		RequestID:        req.RequestID,
		StepID:           req.StepID,
		Decision:         req.Decision,
		ActorUserID:      req.ActorUserID,
		Notes:            req.Notes,
		Reason:           req.Reason,
		ReturnedToStepID: req.ReturnedToStepID,
		DelegateUserID:   req.DelegateUserID,
		RequestType:      req.RequestType,
		AuthToken:        req.AuthToken,
	})
}

func (t *Tracking) validateDecision(req *SubmitDecisionRequest) error {
	if strings.TrimSpace(req.RequestID) == "" {
		return ErrEmptyRequestID
	}

	if strings.TrimSpace(req.StepID) == "" {
		return ErrEmptyStepID
	}

	if strings.TrimSpace(req.ActorUserID) == "" {
		return ErrEmptyActorID
	}

	switch req.Decision {
	case events.DecisionApprove:
	case events.DecisionReject, events.DecisionReturn:
		if strings.TrimSpace(req.Reason) == "" {
			return fmt.Errorf("%w: %s", ErrReasonRequired, req.Decision)
		}
	case events.DecisionDelegate:
		if strings.TrimSpace(req.DelegateUserID) == "" {
			return ErrDelegateRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDecision, req.Decision)
	}

	return nil
}

// RequestCancellation publishes a requester-initiated withdrawal for the
// orchestrator to apply.
func (t *Tracking) RequestCancellation(ctx context.Context, requestID string, requestType events.RequestType, actorUserID, reason string) error {
	if strings.TrimSpace(requestID) == "" {
		return ErrEmptyRequestID
	}

	if strings.TrimSpace(actorUserID) == "" {
		return ErrEmptyActorID
	}

	event := events.RequestCancelRequested{
		BaseEvent: events.NewBaseEvent(events.RequestCancelRequestedEvent, requestType, requestID),
	}
	event.ActorUserID = actorUserID
	event.Reason = reason

	err := t.publisher.Publish(ctx, requestID, event)
	if err != nil {
		return fmt.Errorf("failed to publish cancellation: %w", err)
	}

	return nil
}
