package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/log"
	"github.com/dukex/devflow/pkg/models"
)

// Store persists the task context of an execution.
type Store interface {
	UpdateTaskContext(ctx context.Context, id string, taskContext json.RawMessage) error
}

type Engine struct {
	registry *Registry
	store    Store
	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

type EngineOption func(*Engine)

func WithObserver(observer Observer) EngineOption {
	return func(e *Engine) {
		e.observer = observer
	}
}

func NewEngine(registry *Registry, store Store, logger *slog.Logger, opts ...EngineOption) *Engine {
	engine := &Engine{
		registry: registry,
		store:    store,
		logger:   logger.With("module", "workflow_engine"),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Run executes the workflow selected by the event's workflow type. The context
// is checkpointed before and after every node. When a node fails the run stops
// and the partial context is still persisted.
func (e *Engine) Run(ctx context.Context, event *models.Event) (*models.TaskContext, error) {
	var request models.RequestEvent

	if err := json.Unmarshal(event.Data, &request); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEventData, err)
	}

	if request.ID == "" {
		request.ID = event.SourceEventID
	}

	if request.ProjectID == "" {
		request.ProjectID = event.ProjectID
	}

	workflow := e.registry.Resolve(event.WorkflowType)
	taskContext := models.NewTaskContext(request, workflow.Type, e.now())

	// The id resolved at ingestion is already on the job headers and the
	// acceptance; the run must log and persist that same value.
	switch {
	case event.CorrelationID != "":
		taskContext.SetMeta(models.MetaCorrelationID, event.CorrelationID)
	case request.IncomingCorrelationID() == "":
		taskContext.SetMeta(models.MetaCorrelationID, models.CorrelationIDFor(event.ID))
	}

	execution := &Execution{
		ID:          event.ID,
		ProjectID:   request.ProjectID,
		TaskContext: taskContext,
		Logger: log.WithCorrelation(e.logger, taskContext.CorrelationID()).With(
			"execution_id", event.ID,
			"workflow_type", workflow.Type,
		),
		observer: e.observer,
	}

	execution.Logger.InfoContext(ctx, "Workflow started", "nodes", len(workflow.Nodes))

	started := e.now()

	for i, node := range workflow.Nodes {
		name := node.Name()
		nodeLogger := execution.Logger.With("node", name)

		taskContext.Nodes.Set(name, models.NodeResult{
			"status":     models.NodeStatusRunning,
			"started_at": e.stamp(),
		})
		e.checkpoint(ctx, execution)

		result, err := e.execute(ctx, node, execution)
		if err != nil {
			nodeLogger.ErrorContext(ctx, "Node failed, aborting workflow", "error", err)

			taskContext.Nodes.Set(name, models.NodeResult{
				"status": models.NodeStatusError,
				"error":  err.Error(),
			})
			taskContext.SetMeta(models.MetaError, err.Error())

			nodeErr := &NodeError{Node: name, Err: err}
			persistErr := e.persist(ctx, execution)

			if e.observer != nil {
				e.observer.Failed(ctx, execution, name, err)
			}

			return taskContext, errors.Join(nodeErr, persistErr)
		}

		if result == nil {
			result = models.NodeResult{}
		}

		result["status"] = models.NodeStatusCompleted
		taskContext.Nodes.Set(name, result)

		nodeLogger.InfoContext(ctx, "Node completed")

		if i < len(workflow.Nodes)-1 {
			e.checkpoint(ctx, execution)
		}
	}

	execution.Logger.InfoContext(ctx, "Workflow completed", "duration_ms", e.now().Sub(started).Milliseconds())

	if err := e.persist(ctx, execution); err != nil {
		return taskContext, err
	}

	return taskContext, nil
}

// execute runs one node, converting a panic into an error so the partial
// context can still be persisted.
func (e *Engine) execute(ctx context.Context, node Node, execution *Execution) (result models.NodeResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("node panicked: %v", recovered)
		}
	}()

	return node.Execute(ctx, execution)
}

// checkpoint persists intermediate progress. Failures are logged only.
func (e *Engine) checkpoint(ctx context.Context, execution *Execution) {
	if err := e.save(ctx, execution); err != nil {
		execution.Logger.WarnContext(ctx, "Checkpoint failed", "error", err)

		return
	}

	if e.observer != nil {
		e.observer.Checkpointed(ctx, execution)
	}
}

func (e *Engine) persist(ctx context.Context, execution *Execution) error {
	if err := e.save(context.WithoutCancel(ctx), execution); err != nil {
		execution.Logger.ErrorContext(ctx, "Failed to persist task context", "error", err)

		return err
	}

	if e.observer != nil {
		e.observer.Checkpointed(ctx, execution)
	}

	return nil
}

func (e *Engine) save(ctx context.Context, execution *Execution) error {
	execution.TaskContext.Touch(e.now())

	raw, err := execution.TaskContext.Marshal()
	if err != nil {
		return err
	}

	return e.store.UpdateTaskContext(ctx, execution.ID, raw)
}

func (e *Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}
