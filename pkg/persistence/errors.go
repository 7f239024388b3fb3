// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrEventNotFound indicates an event was not found by the given identifier.
	ErrEventNotFound = errors.New("event not found")

	// ErrEventAlreadyExists indicates an event with the same identifier already exists.
	ErrEventAlreadyExists = errors.New("event already exists")

	// ErrInvalidEventID indicates an event identifier is empty or unsafe.
	ErrInvalidEventID = errors.New("invalid event id")
)

// RepositoryError wraps persistence failures with enough context to correlate them.
type RepositoryError struct {
	Op        string // Operation being performed (e.g., "SaveEvent", "UpdateTaskContext")
	EventID   string // Event/execution ID if applicable
	ProjectID string // Project ID if applicable
	Err       error  // Underlying error
}

func (e *RepositoryError) Error() string {
	target := e.EventID
	if target == "" && e.ProjectID != "" {
		target = "project " + e.ProjectID
	}

	if target == "" {
		return fmt.Sprintf("%s operation failed: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s: %v", e.Op, target, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for repository errors.
func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEventError creates a new repository error scoped to one event.
func NewEventError(op, eventID string, err error) *RepositoryError {
	return &RepositoryError{
		Op:      op,
		EventID: eventID,
		Err:     err,
	}
}

// NewProjectError creates a new repository error scoped to one project.
func NewProjectError(op, projectID string, err error) *RepositoryError {
	return &RepositoryError{
		Op:        op,
		ProjectID: projectID,
		Err:       err,
	}
}

// IsEventNotFound checks if an error indicates an event was not found.
func IsEventNotFound(err error) bool {
	return errors.Is(err, ErrEventNotFound)
}

// IsRepositoryError checks if an error came from the persistence layer.
func IsRepositoryError(err error) bool {
	var repoErr *RepositoryError

	return errors.As(err, &repoErr)
}
