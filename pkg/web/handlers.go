package web

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/dukex/devflow/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// HealthChecker reports whether a backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type APIHandlers struct {
	ingestion *services.Ingestion
	status    *services.StatusProjection
	health    HealthChecker
	validator *validator.Validate
}

func NewAPIHandlers(
	ingestion *services.Ingestion,
	status *services.StatusProjection,
	health HealthChecker,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		ingestion: ingestion,
		status:    status,
		health:    health,
		validator: validator,
	}
}

// IngestEvent accepts a raw event. New events answer 202, duplicates 200.
func (h *APIHandlers) IngestEvent(c fiber.Ctx) error {
	body := bytes.Clone(c.Body())
	if len(body) == 0 {
		return badRequest(c, "Request body is required")
	}

	acceptance, err := h.ingestion.Ingest(c.Context(), body)
	if err != nil {
		return handleServiceError(c, err)
	}

	if acceptance.Duplicate {
		return c.Status(fiber.StatusOK).JSON(acceptance)
	}

	return c.Status(fiber.StatusAccepted).JSON(acceptance)
}

func (h *APIHandlers) GetProjectStatus(c fiber.Ctx) error {
	req := ProjectStatusRequest{ProjectID: c.Params("customer") + "/" + c.Params("project")}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	projection, err := h.status.CurrentStatus(c.Context(), req.ProjectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(projection)
}

func (h *APIHandlers) CompleteExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	var req CompleteExecutionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	projection, err := h.status.UpdateToCompleted(c.Context(), id, req.ProjectID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(projection)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Devflow API is healthy"
	repositoryCheck := "Persistence layer is healthy"
	httpStatus := http.StatusOK

	if err := h.health.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Devflow API is unhealthy"
		repositoryCheck = "Persistence layer is unhealthy: " + err.Error()
		httpStatus = http.StatusInternalServerError
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// Routes mounts the handlers on a fiber router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Post("/events", h.IngestEvent)
	router.Get("/projects/:customer/:project/status", h.GetProjectStatus)
	router.Post("/executions/:id/complete", h.CompleteExecution)
	router.Get("/health", h.HealthCheck)
}
