package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukex/devflow/pkg/models"
)

// Registry resolves workflow types to workflows. Unknown types resolve to the
// fallback so a bad tag never crashes the worker.
type Registry struct {
	mu        sync.RWMutex
	logger    *slog.Logger
	workflows map[string]Workflow
	fallback  Workflow
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "workflow_registry"),
		workflows: make(map[string]Workflow),
		fallback:  PlaceholderWorkflow(),
	}
}

func (r *Registry) Register(workflow Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.workflows[workflow.Type] = workflow
}

// Resolve returns the workflow registered for workflowType, or the placeholder.
func (r *Registry) Resolve(workflowType string) Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if workflow, ok := r.workflows[workflowType]; ok {
		return workflow
	}

	r.logger.Warn("Unknown workflow type, using placeholder workflow", "workflow_type", workflowType)

	return r.fallback
}

// Types lists registered workflow types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.workflows))
	for workflowType := range r.workflows {
		types = append(types, workflowType)
	}

	slices.Sort(types)

	return types
}

// PlaceholderWorkflow acknowledges an event without doing any work.
func PlaceholderWorkflow() Workflow {
	return Workflow{
		Type:  models.WorkflowTypeDefault,
		Nodes: []Node{acknowledgeNode{}},
	}
}

type acknowledgeNode struct{}

func (acknowledgeNode) Name() string {
	return "acknowledge"
}

func (acknowledgeNode) Execute(ctx context.Context, execution *Execution) (models.NodeResult, error) {
	requested := execution.TaskContext.Event.Type
	execution.Log(ctx, fmt.Sprintf("No workflow registered for event type %q, acknowledged only", requested))

	return models.NodeResult{"acknowledged": true}, nil
}
