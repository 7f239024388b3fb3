// Package workflow runs a fixed, named sequence of nodes against a TaskContext.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/devflow/pkg/models"
)

var ErrInvalidEventData = errors.New("event data is not a valid request")

// Node is one step of a workflow. It reads prior results from the execution's
// TaskContext and returns its own result; the engine records the status.
type Node interface {
	Name() string
	Execute(ctx context.Context, execution *Execution) (models.NodeResult, error)
}

// Workflow is an ordered node sequence selected by workflow type.
type Workflow struct {
	Type  string
	Nodes []Node
}

// Observer receives progress while a workflow runs.
type Observer interface {
	Checkpointed(ctx context.Context, execution *Execution)
	Logged(ctx context.Context, execution *Execution, line string)
	Failed(ctx context.Context, execution *Execution, node string, err error)
}

// Execution is the state handed to every node of one run.
type Execution struct {
	ID          string
	ProjectID   string
	TaskContext *models.TaskContext
	Logger      *slog.Logger

	observer Observer
}

func (e *Execution) CorrelationID() string {
	return e.TaskContext.CorrelationID()
}

// Log appends a line to the execution log artifact and forwards it to the observer.
func (e *Execution) Log(ctx context.Context, line string) {
	e.TaskContext.AppendLog(line)
	e.Logger.InfoContext(ctx, line)

	if e.observer != nil {
		e.observer.Logged(ctx, e, line)
	}
}

// NodeError reports the node that aborted a run.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
