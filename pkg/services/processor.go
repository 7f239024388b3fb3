package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/events"
	"github.com/dukex/devflow/pkg/lease"
	"github.com/dukex/devflow/pkg/log"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/otelhelper"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/projection"
	"github.com/dukex/devflow/pkg/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Runner executes the workflow for a stored event.
type Runner interface {
	Run(ctx context.Context, event *models.Event) (*models.TaskContext, error)
}

// Processor is the worker-side handler for process_incoming_event jobs.
type Processor struct {
	store     persistence.EventStore
	runner    Runner
	locker    lease.Locker
	projector *projection.Engine
	workerID  string
	leaseTTL  time.Duration
	tracer    trace.Tracer
	logger    *slog.Logger
}

type ProcessorOption func(*Processor)

func WithLeaseTTL(ttl time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.leaseTTL = ttl
	}
}

func WithProcessorTracer(tracer trace.Tracer) ProcessorOption {
	return func(p *Processor) {
		p.tracer = tracer
	}
}

func NewProcessor(
	store persistence.EventStore,
	runner Runner,
	locker lease.Locker,
	projector *projection.Engine,
	workerID string,
	logger *slog.Logger,
	opts ...ProcessorOption,
) *Processor {
	processor := &Processor{
		store:     store,
		runner:    runner,
		locker:    locker,
		projector: projector,
		workerID:  workerID,
		leaseTTL:  lease.DefaultTTL,
		tracer:    otel.Tracer("devflow"),
		logger:    logger.With("module", "processor", "worker_id", workerID),
	}

	for _, opt := range opts {
		opt(processor)
	}

	return processor
}

// Handle processes one job. Errors are returned only for transient
// infrastructure failures so the bus redelivers; workflow failures are
// already persisted on the event.
func (p *Processor) Handle(ctx context.Context, job events.Job) error {
	logger := p.logger.With("task", job.Task)

	if job.Task != events.ProcessIncomingEventTask {
		logger.WarnContext(ctx, "Ignoring job with unknown task")

		return nil
	}

	eventID, err := job.EventID()
	if err != nil {
		logger.ErrorContext(ctx, "Dropping malformed job", "error", err)

		return nil
	}

	correlationID := job.Headers.CorrelationID
	if correlationID == "" {
		correlationID = models.CorrelationIDFor(eventID)
	}

	logger = log.WithCorrelation(logger, correlationID).With("execution_id", eventID)

	ctx, span := otelhelper.StartSpan(ctx, p.tracer, "worker.process_event",
		attribute.String(otelhelper.ExecutionIDKey, eventID),
		attribute.String(otelhelper.CorrelationIDKey, correlationID),
		attribute.String(otelhelper.ProjectIDKey, job.Headers.ProjectID),
		attribute.String(otelhelper.WorkerIDKey, p.workerID),
	)
	defer span.End()

	key := lease.Key(eventID)

	token, err := p.locker.Acquire(ctx, key, p.leaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			logger.InfoContext(ctx, "Execution is being processed by another worker, skipping")

			return nil
		}

		otelhelper.SetError(span, err)

		return err
	}

	defer func() {
		if err := p.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			logger.WarnContext(ctx, "Failed to release execution lease", "error", err)
		}
	}()

	event, err := p.store.EventByID(ctx, eventID)
	if err != nil {
		if persistence.IsEventNotFound(err) {
			logger.ErrorContext(ctx, "Job references unknown event, dropping")

			return nil
		}

		otelhelper.SetError(span, err)

		return err
	}

	if event.Processed() {
		current := p.projector.Project(event.TaskContext, event.ID, event.ProjectID)
		if current.Status.IsTerminal() {
			logger.InfoContext(ctx, "Execution already finished, skipping", "status", current.Status)

			return nil
		}
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowTypeKey, event.WorkflowType))

	if _, err := p.runner.Run(ctx, event); err != nil {
		otelhelper.SetError(span, err)

		var nodeErr *workflow.NodeError
		if errors.As(err, &nodeErr) {
			logger.WarnContext(ctx, "Workflow aborted", "node", nodeErr.Node, "error", err)
		} else {
			logger.ErrorContext(ctx, "Workflow could not run", "error", err)
		}

		return nil
	}

	return nil
}
