package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/lease"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/projection"
	"github.com/dukex/devflow/pkg/services"
	"github.com/dukex/devflow/pkg/sweeper"
	"github.com/dukex/devflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// WorkerConfig configures a job-consuming worker.
type WorkerConfig struct {
	WorkerID      string
	SweepSchedule string
	Workflows     WorkflowConfig
}

// Worker consumes process_incoming_event jobs and sweeps undispatched events.
type Worker struct {
	bus       eventbus.EventBus
	processor *services.Processor
	sweeper   *sweeper.Sweeper
	logger    *slog.Logger
}

// NewWorker wires the workflow engine, status reporting and the job processor.
// Status envelopes go to broadcaster: a local hub or the bus relay.
func NewWorker(
	store persistence.Persistence,
	bus eventbus.EventBus,
	locker lease.Locker,
	broadcaster broadcast.Broadcaster,
	tracer trace.Tracer,
	config WorkerConfig,
	logger *slog.Logger,
) (*Worker, error) {
	logger = logger.With("worker_id", config.WorkerID)
	projector := projection.NewEngine(logger)

	statusService := services.NewStatusProjection(store, projector, broadcaster, logger)
	registry := NewWorkflowRegistry(logger, config.Workflows, statusService)

	engine := workflow.NewEngine(registry, store, logger,
		workflow.WithObserver(services.NewStatusReporter(projector, broadcaster, logger)))

	processor := services.NewProcessor(store, engine, locker, projector, config.WorkerID, logger,
		services.WithProcessorTracer(tracer))

	sweep, err := sweeper.New(store, bus, config.SweepSchedule, logger)
	if err != nil {
		return nil, err
	}

	return &Worker{
		bus:       bus,
		processor: processor,
		sweeper:   sweep,
		logger:    logger.With("module", "worker"),
	}, nil
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	if err := w.bus.Consume(ctx, w.processor.Handle); err != nil {
		return fmt.Errorf("failed to consume jobs: %w", err)
	}

	if err := w.sweeper.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	w.sweeper.Stop(context.WithoutCancel(ctx))
	w.logger.InfoContext(ctx, "Worker stopped")

	return nil
}
