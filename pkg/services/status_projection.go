package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/projection"
	"github.com/dukex/devflow/pkg/status"
)

// StatusProjection answers status queries and applies the completion trigger.
type StatusProjection struct {
	store       persistence.EventStore
	projector   *projection.Engine
	broadcaster broadcast.Broadcaster
	logger      *slog.Logger
	now         func() time.Time
}

func NewStatusProjection(
	store persistence.EventStore,
	projector *projection.Engine,
	broadcaster broadcast.Broadcaster,
	logger *slog.Logger,
) *StatusProjection {
	return &StatusProjection{
		store:       store,
		projector:   projector,
		broadcaster: broadcaster,
		logger:      logger.With("module", "status_projection_service"),
		now:         time.Now,
	}
}

// UpdateToCompleted moves an execution to completed and broadcasts an
// execution-update frame followed by a completion frame.
func (s *StatusProjection) UpdateToCompleted(ctx context.Context, executionID, projectID string) (*models.StatusProjection, error) {
	const op = "update_to_completed"

	if executionID == "" {
		return nil, NewValidationError(op, "empty_execution_id", ErrEmptyExecutionID.Error(), ErrEmptyExecutionID)
	}

	if projectID == "" {
		return nil, NewValidationError(op, "empty_project_id", ErrEmptyProjectID.Error(), ErrEmptyProjectID)
	}

	logger := s.logger.With("execution_id", executionID, "project_id", projectID)

	event, err := s.store.EventByID(ctx, executionID)
	if err != nil {
		return nil, &ServiceError{Op: op, Code: "load_failed", ExecutionID: executionID, ProjectID: projectID, Err: err}
	}

	if event.ProjectID != "" && event.ProjectID != projectID {
		return nil, NewValidationError(op, "project_mismatch", ErrProjectIDMismatch.Error(), ErrProjectIDMismatch)
	}

	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	current := s.projector.Project(event.TaskContext, executionID, projectID)

	if err := status.Transition(current.Status, models.StatusCompleted); err != nil {
		logger.WarnContext(ctx, "Rejected completion", "current_status", current.Status, "error", err)

		return nil, &ServiceError{
			Op:          op,
			Code:        "invalid_transition",
			Message:     err.Error(),
			ExecutionID: executionID,
			ProjectID:   projectID,
			Err:         err,
		}
	}

	if current.Totals.Total == 0 {
		logger.WarnContext(ctx, "Rejected completion of an execution without node results", "current_status", current.Status)

		conflict := NewConflictError(op, executionID, ErrNoNodeResults.Error(), ErrNoNodeResults)
		conflict.ProjectID = projectID

		return nil, conflict
	}

	completed := current.Completed(s.now())

	s.broadcast(ctx, logger, broadcast.NewEnvelope(models.EnvelopeExecutionUpdate, projectID, completed))
	s.broadcast(ctx, logger, broadcast.NewEnvelope(models.EnvelopeCompletion, projectID, map[string]any{
		"execution_id": executionID,
		"status":       completed.Status,
		"progress":     completed.Progress,
		"totals":       completed.Totals,
	}))

	logger.InfoContext(ctx, "Execution completed", "from_status", current.Status)

	return &completed, nil
}

// CurrentStatus projects the most recent execution of a project. A project
// with no recorded execution returns ErrExecutionNotFound.
func (s *StatusProjection) CurrentStatus(ctx context.Context, projectID string) (*models.StatusProjection, error) {
	const op = "current_status"

	if projectID == "" {
		return nil, NewValidationError(op, "empty_project_id", ErrEmptyProjectID.Error(), ErrEmptyProjectID)
	}

	event, err := s.store.LatestEventByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, persistence.ErrEventNotFound) {
			err = errors.Join(ErrExecutionNotFound, err)
		}

		return nil, &ServiceError{Op: op, Code: "load_failed", ProjectID: projectID, Err: err}
	}

	projected := s.projector.Project(event.TaskContext, event.ID, projectID)

	return &projected, nil
}

func (s *StatusProjection) broadcast(ctx context.Context, logger *slog.Logger, envelope models.Envelope) {
	if s.broadcaster == nil {
		return
	}

	if err := s.broadcaster.Broadcast(ctx, envelope); err != nil {
		logger.ErrorContext(ctx, "Failed to broadcast envelope", "type", envelope.Type, "error", err)
	}
}
