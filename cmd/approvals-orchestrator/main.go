package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/talentflow/approvals/pkg/cmd"
	"github.com/talentflow/approvals/pkg/directory"
	"github.com/talentflow/approvals/pkg/idempotency"
	"github.com/talentflow/approvals/pkg/log"
	"github.com/talentflow/approvals/pkg/orchestrator"
	"github.com/talentflow/approvals/pkg/otelhelper"
)

const defaultDedupWindow = 24 * time.Hour

func main() {
	command := &cli.Command{
		Name:                  "approvals-orchestrator",
		Usage:                 "Start the approval workflow orchestrator worker",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
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
				Name:     "directory-url",
				Usage:    "Base URL of the position directory service",
				Required: true,
				Sources:  cli.EnvVars("DIRECTORY_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the duplicate-delivery guard (in-memory when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Value:   false,
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("approvals-orchestrator").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing approvals orchestrator")

			var (
				tracer trace.Tracer
				err    error
			)

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "approvals-orchestrator")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}
			} else {
				tracer = otelhelper.NoopTracer()
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), "approvals-orchestrator", logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			guard, err := newGuard(command.String("redis-url"))
			if err != nil {
				return fmt.Errorf("failed to create idempotency guard: %w", err)
			}

			defer func() {
				if err := guard.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close idempotency guard", "error", err)
				}
			}()

			orch := orchestrator.New(
				persistence,
				directory.NewHTTPResolver(command.String("directory-url")),
				eventBus,
				logger,
				tracer,
			)

			NewWorkerManager(
				workerID,
				eventBus,
				orch,
				guard,
				logger,
				tracer,
			).Start(ctx)

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// nolint:ireturn
func newGuard(redisURL string) (idempotency.Guard, error) {
	if redisURL == "" {
		return idempotency.NewMemoryGuard(defaultDedupWindow), nil
	}

	return idempotency.NewRedisGuard(redisURL, defaultDedupWindow)
}
