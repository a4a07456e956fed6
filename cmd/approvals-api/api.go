// Package main provides the approvals API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/talentflow/approvals/pkg/directory"
	"github.com/talentflow/approvals/pkg/eventbus"
	"github.com/talentflow/approvals/pkg/orchestrator"
	"github.com/talentflow/approvals/pkg/otelhelper"
	"github.com/talentflow/approvals/pkg/persistence"
	"github.com/talentflow/approvals/pkg/services"
	"github.com/talentflow/approvals/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	resolver    directory.Resolver
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	resolver directory.Resolver,
) *API {
	return &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		resolver:    resolver,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	// Decisions are applied in-process; the ledger's guarded transitions
	// keep this safe alongside the worker consuming the bus.
	orch := orchestrator.New(a.persistence, a.resolver, a.eventBus, a.logger, otelhelper.NoopTracer())

	workflowService := services.NewWorkflow(a.persistence)
	trackingService := services.NewTracking(a.persistence, a.eventBus, orch)

	handlers := web.NewAPIHandlers(workflowService, trackingService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Approvals API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeactivateWorkflow)

	app.Get("/trackings", handlers.GetTrackings)

	r := app.Group("/requests")
	r.Get("/:requestId/approval", handlers.GetRequestApproval)
	r.Post("/:requestId/decisions", handlers.SubmitDecision)
	r.Post("/:requestId/cancel", handlers.CancelRequest)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
