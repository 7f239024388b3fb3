package workflow_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/persistence/file"
	"github.com/dukex/devflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcNode struct {
	name string
	fn   func(ctx context.Context, execution *workflow.Execution) (models.NodeResult, error)
}

func (n funcNode) Name() string { return n.name }

func (n funcNode) Execute(ctx context.Context, execution *workflow.Execution) (models.NodeResult, error) {
	return n.fn(ctx, execution)
}

type recordingObserver struct {
	mu          sync.Mutex
	checkpoints int
	lines       []string
	failedNode  string
}

func (o *recordingObserver) Checkpointed(_ context.Context, _ *workflow.Execution) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.checkpoints++
}

func (o *recordingObserver) Logged(_ context.Context, _ *workflow.Execution, line string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.lines = append(o.lines, line)
}

func (o *recordingObserver) Failed(_ context.Context, _ *workflow.Execution, node string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.failedNode = node
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func saveEvent(t *testing.T, store persistence.Persistence, workflowType, data string) *models.Event {
	t.Helper()

	event := &models.Event{
		ID:            "exec-1",
		SourceEventID: "evt_1",
		Fingerprint:   "fp",
		ProjectID:     "acme/web",
		WorkflowType:  workflowType,
		Data:          json.RawMessage(data),
	}
	require.NoError(t, store.SaveEvent(t.Context(), event))

	return event
}

func storedContext(t *testing.T, store persistence.Persistence, id string) *models.TaskContext {
	t.Helper()

	event, err := store.EventByID(t.Context(), id)
	require.NoError(t, err)

	var taskContext models.TaskContext
	require.NoError(t, json.Unmarshal(event.TaskContext, &taskContext))

	return &taskContext
}

func TestEngine_RunsNodesInOrder(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	registry := workflow.NewRegistry(discard())
	observer := &recordingObserver{}

	registry.Register(workflow.Workflow{
		Type: "TEST",
		Nodes: []workflow.Node{
			funcNode{name: "first", fn: func(_ context.Context, ex *workflow.Execution) (models.NodeResult, error) {
				ex.TaskContext.SetMeta(models.MetaBranch, "devteam/t1")

				return models.NodeResult{"value": 1}, nil
			}},
			funcNode{name: "second", fn: func(ctx context.Context, ex *workflow.Execution) (models.NodeResult, error) {
				previous, ok := ex.TaskContext.Nodes.Get("first")
				require.True(t, ok)
				assert.Equal(t, models.NodeStatusCompleted, previous["status"])
				assert.Equal(t, "devteam/t1", ex.TaskContext.MetaString(models.MetaBranch))

				current, _ := ex.TaskContext.Nodes.Get("second")
				assert.Equal(t, models.NodeStatusRunning, current["status"])

				ex.Log(ctx, "second is running")

				return nil, nil
			}},
		},
	})

	event := saveEvent(t, store, "TEST", `{"id":"evt_1","type":"task.created"}`)
	engine := workflow.NewEngine(registry, store, discard(), workflow.WithObserver(observer))

	taskContext, err := engine.Run(t.Context(), event)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, taskContext.Nodes.Names())

	persisted := storedContext(t, store, event.ID)
	assert.Equal(t, []string{"first", "second"}, persisted.Nodes.Names())

	first, _ := persisted.Nodes.Get("first")
	assert.Equal(t, models.NodeStatusCompleted, first["status"])
	assert.EqualValues(t, 1, first["value"])

	assert.Equal(t, "corr_evt_1", persisted.CorrelationID())
	assert.Equal(t, "TEST", persisted.MetaString(models.MetaWorkflowType))
	assert.Equal(t, []any{"second is running"}, persisted.Metadata[models.MetaLogs])

	assert.Equal(t, []string{"second is running"}, observer.lines)
	assert.GreaterOrEqual(t, observer.checkpoints, 3)
}

func TestEngine_AbortPersistsPartialContext(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	registry := workflow.NewRegistry(discard())
	observer := &recordingObserver{}
	thirdRan := false

	registry.Register(workflow.Workflow{
		Type: "TEST",
		Nodes: []workflow.Node{
			funcNode{name: "select", fn: func(context.Context, *workflow.Execution) (models.NodeResult, error) {
				return models.NodeResult{"task_id": "t1"}, nil
			}},
			funcNode{name: "build", fn: func(context.Context, *workflow.Execution) (models.NodeResult, error) {
				return nil, errors.New("npm ci exited 1")
			}},
			funcNode{name: "push", fn: func(context.Context, *workflow.Execution) (models.NodeResult, error) {
				thirdRan = true

				return nil, nil
			}},
		},
	})

	event := saveEvent(t, store, "TEST", `{"id":"evt_1"}`)
	engine := workflow.NewEngine(registry, store, discard(), workflow.WithObserver(observer))

	_, err := engine.Run(t.Context(), event)
	require.Error(t, err)

	var nodeErr *workflow.NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "build", nodeErr.Node)
	assert.False(t, thirdRan)
	assert.Equal(t, "build", observer.failedNode)

	persisted := storedContext(t, store, event.ID)
	assert.Equal(t, []string{"select", "build"}, persisted.Nodes.Names())

	selectResult, _ := persisted.Nodes.Get("select")
	assert.Equal(t, models.NodeStatusCompleted, selectResult["status"])

	buildResult, _ := persisted.Nodes.Get("build")
	assert.Equal(t, models.NodeStatusError, buildResult["status"])
	assert.Contains(t, persisted.MetaString(models.MetaError), "npm ci exited 1")
}

func TestEngine_RecoversNodePanic(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	registry := workflow.NewRegistry(discard())
	registry.Register(workflow.Workflow{
		Type: "TEST",
		Nodes: []workflow.Node{
			funcNode{name: "explode", fn: func(context.Context, *workflow.Execution) (models.NodeResult, error) {
				panic("boom")
			}},
		},
	})

	event := saveEvent(t, store, "TEST", `{"id":"evt_1"}`)

	_, err := workflow.NewEngine(registry, store, discard()).Run(t.Context(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node panicked: boom")

	result, _ := storedContext(t, store, event.ID).Nodes.Get("explode")
	assert.Equal(t, models.NodeStatusError, result["status"])
}

func TestEngine_CorrelationPropagation(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	registry := workflow.NewRegistry(logger)
	registry.Register(workflow.Workflow{
		Type: "TEST",
		Nodes: []workflow.Node{
			funcNode{name: "noop", fn: func(ctx context.Context, ex *workflow.Execution) (models.NodeResult, error) {
				ex.Log(ctx, "hello")

				return nil, nil
			}},
		},
	})

	event := saveEvent(t, store, "TEST", `{"id":"evt_1","metadata":{"correlation_id":"upstream-42"}}`)

	taskContext, err := workflow.NewEngine(registry, store, logger).Run(t.Context(), event)
	require.NoError(t, err)

	assert.Equal(t, "upstream-42", taskContext.CorrelationID())
	assert.Equal(t, "upstream-42", storedContext(t, store, event.ID).CorrelationID())
	assert.Contains(t, buf.String(), `"correlation_id":"upstream-42"`)
	assert.NotContains(t, buf.String(), "corr_evt_1")
}

func TestEngine_StoredCorrelationIDWins(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stored   string
		data     string
		expected string
	}{
		{name: "stored id", stored: "corr_ingested", data: `{"id":"evt_1"}`, expected: "corr_ingested"},
		{name: "stored id over payload", stored: "corr_ingested", data: `{"id":"evt_1","metadata":{"correlation_id":"upstream"}}`, expected: "corr_ingested"},
		{name: "derived from execution id", data: `{"id":"evt_1"}`, expected: "corr_exec-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			store := file.NewPersistence(t.TempDir())
			buf := &bytes.Buffer{}
			logger := slog.New(slog.NewJSONHandler(buf, nil))
			registry := workflow.NewRegistry(logger)
			registry.Register(workflow.Workflow{
				Type: "TEST",
				Nodes: []workflow.Node{
					funcNode{name: "noop", fn: func(ctx context.Context, ex *workflow.Execution) (models.NodeResult, error) {
						ex.Log(ctx, "hello")

						return nil, nil
					}},
				},
			})

			event := &models.Event{
				ID:            "exec-1",
				SourceEventID: "evt_1",
				Fingerprint:   "fp",
				ProjectID:     "acme/web",
				CorrelationID: tt.stored,
				WorkflowType:  "TEST",
				Data:          json.RawMessage(tt.data),
			}
			require.NoError(t, store.SaveEvent(t.Context(), event))

			taskContext, err := workflow.NewEngine(registry, store, logger).Run(t.Context(), event)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, taskContext.CorrelationID())
			assert.Equal(t, tt.expected, storedContext(t, store, event.ID).CorrelationID())
			assert.NotContains(t, buf.String(), "corr_evt_1")
		})
	}
}

func TestRegistry_Types(t *testing.T) {
	t.Parallel()

	registry := workflow.NewRegistry(discard())
	assert.Empty(t, registry.Types())

	registry.Register(workflow.Workflow{Type: "REVIEW"})
	registry.Register(workflow.PlaceholderWorkflow())
	registry.Register(workflow.Workflow{Type: models.WorkflowTypeDevTeamAutomation})

	assert.Equal(t, []string{models.WorkflowTypeDefault, models.WorkflowTypeDevTeamAutomation, "REVIEW"}, registry.Types())
}

func TestEngine_UnknownTypeUsesPlaceholder(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	registry := workflow.NewRegistry(discard())

	event := saveEvent(t, store, "SOMETHING_ELSE", `{"id":"evt_1","type":"mystery"}`)

	taskContext, err := workflow.NewEngine(registry, store, discard()).Run(t.Context(), event)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowTypeDefault, taskContext.MetaString(models.MetaWorkflowType))
	assert.Equal(t, []string{"acknowledge"}, taskContext.Nodes.Names())
}

func TestEngine_InvalidEventData(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	event := saveEvent(t, store, "TEST", `{"id":"evt_1"}`)
	event.Data = json.RawMessage(`[1,2,3]`)

	_, err := workflow.NewEngine(workflow.NewRegistry(discard()), store, discard()).Run(t.Context(), event)
	require.ErrorIs(t, err, workflow.ErrInvalidEventData)
}

func TestEngine_LightweightNodesFinishQuickly(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	registry := workflow.NewRegistry(discard())

	nodes := make([]workflow.Node, 0, 4)
	for _, name := range []string{"a", "b", "c", "d"} {
		nodes = append(nodes, funcNode{name: name, fn: func(context.Context, *workflow.Execution) (models.NodeResult, error) {
			return models.NodeResult{}, nil
		}})
	}

	registry.Register(workflow.Workflow{Type: "TEST", Nodes: nodes})
	event := saveEvent(t, store, "TEST", `{"id":"evt_1"}`)

	start := time.Now()
	_, err := workflow.NewEngine(registry, store, discard()).Run(t.Context(), event)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
