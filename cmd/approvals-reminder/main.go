// Package main provides the reminder collaborator: a scheduled scan of the
// tracking ledger that nudges approvers sitting on a pending step.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/talentflow/approvals/pkg/cmd"
	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/events"
	"github.com/talentflow/approvals/pkg/log"
	"github.com/talentflow/approvals/pkg/persistence"
)

const (
	defaultSchedule  = "0 * * * *"
	defaultThreshold = 24 * time.Hour
)

func main() {
	command := &cli.Command{
		Name:                  "approvals-reminder",
		Usage:                 "Publish reminders for approval steps pending too long",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for the reminder scan",
				Value:   defaultSchedule,
				Sources: cli.EnvVars("REMINDER_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "pending-threshold",
				Usage:   "How long a step may sit pending before a reminder",
				Value:   defaultThreshold,
				Sources: cli.EnvVars("REMINDER_PENDING_THRESHOLD"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("approvals-reminder")
			logger.InfoContext(ctx, "Initializing approvals reminder")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "approvals-reminder", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			scanner := NewScanner(
				persistence.TrackingRepository(),
				eventBus,
				logger,
				command.Duration("pending-threshold"),
			)

			scheduler := cron.New()

			_, err = scheduler.AddFunc(command.String("schedule"), func() {
				if err := scanner.Scan(ctx); err != nil {
					logger.ErrorContext(ctx, "Reminder scan failed", "error", err)
				}
			})
			if err != nil {
				return fmt.Errorf("invalid schedule %q: %w", command.String("schedule"), err)
			}

			scheduler.Start()
			defer scheduler.Stop()

			logger.InfoContext(ctx, "Reminder scheduler started",
				"schedule", command.String("schedule"),
				"pending_threshold", command.Duration("pending-threshold"))

			signals := make(chan os.Signal, 1)
			signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

			sig := <-signals
			logger.InfoContext(ctx, "Received signal, shutting down", "signal", sig)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// Scanner publishes one StepReminder per pending ledger row older than the
// threshold. Publishing is keyed by request id like every lifecycle event.
type Scanner struct {
	ledger    persistence.TrackingRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	threshold time.Duration
}

func NewScanner(
	ledger persistence.TrackingRepository,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	threshold time.Duration,
) *Scanner {
	return &Scanner{
		ledger:    ledger,
		publisher: publisher,
		logger:    logger.With("module", "reminder-scanner"),
		threshold: threshold,
	}
}

func (s *Scanner) Scan(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.threshold)

	stale, err := s.ledger.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale pending steps: %w", err)
	}

	s.logger.InfoContext(ctx, "Reminder scan", "cutoff", cutoff, "stale_count", len(stale))

	for _, row := range stale {
		reminder := events.StepReminder{
			BaseEvent:      events.NewBaseEvent(events.StepReminderEvent, "", row.RequestID),
			StepID:         row.StepID,
			AssignedUserID: row.AssignedUserID,
			PendingSince:   row.CreatedAt,
		}
		reminder.WorkflowID = row.WorkflowID

		err := s.publisher.Publish(ctx, row.RequestID, reminder)
		if err != nil {
			return fmt.Errorf("failed to publish reminder for request %s: %w", row.RequestID, err)
		}
	}

	return nil
}
