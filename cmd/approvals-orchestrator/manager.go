package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/trace"

	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/idempotency"
	"github.com/talentflow/approvals/pkg/orchestrator"
)

// WorkerManager owns the orchestrator's consumer loop: it registers the
// inbound event handlers, guards them against duplicate delivery and keeps
// the subscription alive until a shutdown signal.
type WorkerManager struct {
	id           string
	eventBus     eventbus.EventBus
	orchestrator *orchestrator.Orchestrator
	guard        idempotency.Guard
	logger       *slog.Logger
}

func NewWorkerManager(
	id string,
	eventBus eventbus.EventBus,
	orch *orchestrator.Orchestrator,
	guard idempotency.Guard,
	logger *slog.Logger,
	_ trace.Tracer,
) *WorkerManager {
	return &WorkerManager{
		id:           id,
		eventBus:     eventBus,
		orchestrator: orch,
		guard:        guard,
		logger:       logger.With("module", "approvals-orchestrator", "worker_id", id),
	}
}

func (wm *WorkerManager) Start(ctx context.Context) {
	wmCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wm.logger.InfoContext(wmCtx, "Starting orchestrator worker")

	err := wm.registerHandlers()
	if err != nil {
		wm.logger.ErrorContext(wmCtx, "Failed to register event handlers", "error", err)

		return
	}

	err = wm.eventBus.Subscribe(wmCtx)
	if err != nil {
		wm.logger.ErrorContext(wmCtx, "Failed to subscribe to event bus", "error", err)

		return
	}

	wm.signals(wmCtx, cancel)

	<-wmCtx.Done()
	wm.logger.Info("Orchestrator worker stopped")
}

func (wm *WorkerManager) signals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		wm.logger.InfoContext(ctx, "Received signal, shutting down gracefully", "signal", sig)
		cancel()
	}()
}

func (wm *WorkerManager) registerHandlers() error {
	handlers := map[events.EventType]eventbus.EventHandler{
		events.RequestSubmittedEvent:       wm.handleSubmission,
		events.DecisionSubmittedEvent:      wm.handleDecision,
		events.RequestCancelRequestedEvent: wm.handleCancelRequest,
	}

	for eventType, handler := range handlers {
		err := wm.eventBus.Handle(eventType, wm.deduplicated(handler))
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return nil
}

type identifiable interface {
	EventID() string
}

// deduplicated short-circuits redelivered events by id. Guard failures fall
// through to the handler: the ledger's guarded transitions stay correct
// without the fast path.
func (wm *WorkerManager) deduplicated(handler eventbus.EventHandler) eventbus.EventHandler {
	return func(ctx context.Context, event any) error {
		id, ok := event.(identifiable)
		if !ok || id.EventID() == "" {
			return handler(ctx, event)
		}

		fresh, err := wm.guard.MarkIfNew(ctx, id.EventID())
		if err != nil {
			wm.logger.WarnContext(ctx, "Idempotency guard unavailable, processing anyway",
				"event_id", id.EventID(), "error", err)

			return handler(ctx, event)
		}

		if !fresh {
			wm.logger.InfoContext(ctx, "Skipping duplicate event", "event_id", id.EventID())

			return nil
		}

		if err := handler(ctx, event); err != nil {
			// The transport nacks and redelivers this event; clear the mark
			// so the redelivery is processed, not skipped as a duplicate.
			if forgetErr := wm.guard.Forget(ctx, id.EventID()); forgetErr != nil {
				wm.logger.WarnContext(ctx, "Failed to clear idempotency mark",
					"event_id", id.EventID(), "error", forgetErr)
			}

			return err
		}

		return nil
	}
}

func (wm *WorkerManager) handleSubmission(ctx context.Context, event any) error {
	submitted, ok := event.(*events.RequestSubmitted)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, events.RequestSubmittedEvent)
	}

	return wm.orchestrator.HandleSubmission(ctx, submitted)
}

func (wm *WorkerManager) handleDecision(ctx context.Context, event any) error {
	decision, ok := event.(*events.DecisionSubmitted)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, events.DecisionSubmittedEvent)
	}

	err := wm.orchestrator.Decide(ctx, orchestrator.DecideInput{
		RequestID:        decision.RequestID,
		StepID:           decision.StepID,
		Decision:         decision.Decision,
		ActorUserID:      decision.ActorUserID,
		Notes:            decision.Notes,
		Reason:           decision.Reason,
		ReturnedToStepID: decision.ReturnedToStepID,
		DelegateUserID:   decision.DelegateUserID,
		RequestType:      decision.RequestType,
		AuthToken:        decision.AuthToken,
	})
	if err != nil {
		// Stale and conflicting decisions are settled; retrying would only
		// replay the same outcome.
		if orchestrator.IsStaleEvent(err) || orchestrator.IsStepConflict(err) {
			wm.logger.InfoContext(ctx, "Decision not applicable, dropping",
				"request_id", decision.RequestID, "step_id", decision.StepID, "error", err)

			return nil
		}

		return err
	}

	return nil
}

func (wm *WorkerManager) handleCancelRequest(ctx context.Context, event any) error {
	cancel, ok := event.(*events.RequestCancelRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T for %s", event, events.RequestCancelRequestedEvent)
	}

	return wm.orchestrator.Cancel(ctx, cancel.RequestID, cancel.RequestType, cancel.ActorUserID, cancel.Reason)
}
