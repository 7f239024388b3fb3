package services

import (
	"context"
	"log/slog"

	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/projection"
	"github.com/dukex/devflow/pkg/workflow"
)

// StatusReporter turns workflow progress into broadcast envelopes.
type StatusReporter struct {
	projector   *projection.Engine
	broadcaster broadcast.Broadcaster
	logger      *slog.Logger
}

func NewStatusReporter(projector *projection.Engine, broadcaster broadcast.Broadcaster, logger *slog.Logger) *StatusReporter {
	return &StatusReporter{
		projector:   projector,
		broadcaster: broadcaster,
		logger:      logger.With("module", "status_reporter"),
	}
}

var _ workflow.Observer = (*StatusReporter)(nil)

func (r *StatusReporter) Checkpointed(ctx context.Context, execution *workflow.Execution) {
	projected := r.projector.Project(execution.TaskContext, execution.ID, execution.ProjectID)

	r.send(ctx, execution, broadcast.NewEnvelope(models.EnvelopeExecutionUpdate, execution.ProjectID, projected))
}

func (r *StatusReporter) Logged(ctx context.Context, execution *workflow.Execution, line string) {
	r.send(ctx, execution, broadcast.NewEnvelope(models.EnvelopeExecutionLog, execution.ProjectID, map[string]any{
		"execution_id":   execution.ID,
		"correlation_id": execution.CorrelationID(),
		"line":           line,
	}))
}

func (r *StatusReporter) Failed(ctx context.Context, execution *workflow.Execution, node string, err error) {
	r.send(ctx, execution, broadcast.NewEnvelope(models.EnvelopeError, execution.ProjectID, map[string]any{
		"execution_id":   execution.ID,
		"correlation_id": execution.CorrelationID(),
		"node":           node,
		"message":        err.Error(),
	}))
}

func (r *StatusReporter) send(ctx context.Context, execution *workflow.Execution, envelope models.Envelope) {
	if execution.ProjectID == "" {
		return
	}

	if err := r.broadcaster.Broadcast(ctx, envelope); err != nil {
		r.logger.WarnContext(ctx, "Failed to report progress",
			"execution_id", execution.ID,
			"type", envelope.Type,
			"error", err,
		)
	}
}
