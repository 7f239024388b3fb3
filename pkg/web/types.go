// Package web provides HTTP request and response types for the ingestion and status API.
package web

import (
	"github.com/dukex/devflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// ProjectStatusRequest identifies the project whose status is queried.
type ProjectStatusRequest struct {
	ProjectID string `validate:"required,projectid"`
}

// CompleteExecutionRequest is the body of the completion trigger.
type CompleteExecutionRequest struct {
	ProjectID string `json:"project_id" validate:"required,projectid"`
}

// NewValidator returns a validator with the projectid rule registered.
func NewValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())

	_ = validate.RegisterValidation("projectid", func(fl validator.FieldLevel) bool {
		return models.ValidateProjectID(fl.Field().String()) == nil
	})

	return validate
}
