// Package services provides the ingestion, status and job processing services and their error types.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/status"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrValidation        = errors.New("validation failed")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrEmptyExecutionID  = errors.New("execution id cannot be empty")
	ErrEmptyProjectID    = errors.New("project id cannot be empty")
	ErrProjectIDMismatch = errors.New("project id does not match execution")
	ErrSchemaValidation  = errors.New("event does not match schema")

	// Business Logic Conflicts (409 Conflict).
	ErrConflict       = errors.New("conflict")
	ErrDuplicateEvent = errors.New("event already accepted")
	ErrNoNodeResults  = errors.New("execution has no node results to complete")

	// Not Found (404).
	ErrExecutionNotFound = errors.New("no execution recorded for project")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op            string // Operation name
	Code          string // Error code for API responses
	Message       string // Human-readable message
	ExecutionID   string
	ProjectID     string
	CorrelationID string
	Err           error // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidPayload) ||
		errors.Is(err, ErrEmptyExecutionID) ||
		errors.Is(err, ErrEmptyProjectID) ||
		errors.Is(err, ErrProjectIDMismatch) ||
		errors.Is(err, ErrSchemaValidation)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateEvent) ||
		errors.Is(err, ErrNoNodeResults) ||
		errors.Is(err, status.ErrInvalidTransition)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrExecutionNotFound) ||
		persistence.IsEventNotFound(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     errors.Join(ErrValidation, err),
	}
}

// NewConflictError creates a conflict error tied to an execution.
func NewConflictError(op, executionID, message string, err error) *ServiceError {
	return &ServiceError{
		Op:          op,
		Code:        "conflict",
		Message:     message,
		ExecutionID: executionID,
		Err:         errors.Join(ErrConflict, err),
	}
}
