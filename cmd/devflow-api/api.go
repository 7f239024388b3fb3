// Package main provides the devflow ingestion, status and WebSocket API.
package main

import (
	"log/slog"

	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/idempotency"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/projection"
	"github.com/dukex/devflow/pkg/services"
	"github.com/dukex/devflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	guard       *idempotency.Guard
	eventBus    eventbus.EventBus
	hub         *broadcast.Hub
	tracer      trace.Tracer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	guard *idempotency.Guard,
	eventBus eventbus.EventBus,
	hub *broadcast.Hub,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		guard:       guard,
		eventBus:    eventBus,
		hub:         hub,
		tracer:      tracer,
		validate:    web.NewValidator(),
	}
}

func (a *API) App() *fiber.App {
	ingestion := services.NewIngestion(a.persistence, a.guard, a.eventBus, a.logger,
		services.WithIngestionTracer(a.tracer))
	status := services.NewStatusProjection(a.persistence, projection.NewEngine(a.logger), a.hub, a.logger)

	handlers := web.NewAPIHandlers(ingestion, status, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Devflow API")
	})

	handlers.Routes(app)

	return app
}
