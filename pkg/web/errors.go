package web

import (
	"errors"

	"github.com/dukex/devflow/pkg/services"
	"github.com/dukex/devflow/pkg/status"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func problem(c fiber.Ctx, code int, kind, detail string) error {
	doc := problems.NewStatusProblem(code).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(code).JSON(doc)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

// handleServiceError maps service errors onto RFC7807 problem documents.
// Order matters: an invalid transition is also a conflict, and a missing
// execution is also a not-found.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())
	case errors.Is(err, status.ErrInvalidTransition):
		return problem(c, fiber.StatusConflict, "invalid_transition", err.Error())
	case services.IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())
	case errors.Is(err, services.ErrExecutionNotFound):
		return problem(c, fiber.StatusNotFound, "execution_not_found", "no execution recorded for project")
	case services.IsNotFoundError(err):
		return problem(c, fiber.StatusNotFound, "event_not_found", "execution not found")
	}

	doc := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(doc)
}
