// Package build installs dependencies and builds the task repository in a container.
package build

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/devflow/pkg/containers"
	"github.com/dukex/devflow/pkg/executor"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/workflow"
)

const (
	Name             = "build"
	ContainerPath    = "/workspace"
	OperationTimeout = 10 * time.Minute
)

var ErrNoRepository = errors.New("no repository path prepared")

// Runner executes one operation with bounded retries.
type Runner interface {
	Run(ctx context.Context, op executor.Operation, maxAttempts int) (*models.AiderExecutionResult, error)
}

type Node struct {
	runner      Runner
	image       string
	maxAttempts int
	commands    [][]string
}

func New(runner Runner, image string) *Node {
	return &Node{
		runner:      runner,
		image:       image,
		maxAttempts: models.MaxAttemptsCeiling,
		commands: [][]string{
			{"npm", "ci"},
			{"npm", "run", "build"},
		},
	}
}

func (n *Node) Name() string {
	return Name
}

func (n *Node) Execute(ctx context.Context, execution *workflow.Execution) (models.NodeResult, error) {
	repoPath := execution.TaskContext.MetaString(models.MetaRepoPath)
	if repoPath == "" {
		return nil, ErrNoRepository
	}

	operations := make([]any, 0, len(n.commands))

	for _, command := range n.commands {
		op := executor.Operation{
			Name:          strings.Join(command, " "),
			Command:       command,
			CorrelationID: execution.CorrelationID(),
			Timeout:       OperationTimeout,
			Container: containers.Spec{
				Image:   n.image,
				WorkDir: ContainerPath,
				CopyDir: repoPath,
			},
		}

		execution.Log(ctx, "Running "+op.Name)

		result, err := n.runner.Run(ctx, op, n.maxAttempts)
		if result != nil {
			operations = append(operations, summarize(result))
			logOutput(ctx, execution, result)
		}

		if err != nil {
			return nil, fmt.Errorf("%s: %w", op.Name, err)
		}
	}

	return models.NodeResult{"operations": operations}, nil
}

func summarize(result *models.AiderExecutionResult) map[string]any {
	return map[string]any{
		"operation":      result.Operation,
		"success":        result.Success,
		"exit_code":      result.ExitCode,
		"attempt_count":  result.AttemptCount,
		"max_attempts":   result.MaxAttempts,
		"retry_attempts": result.RetryAttempts,
		"container_id":   result.ContainerID,
		"duration_ms":    result.Timing.TotalMs,
	}
}

func logOutput(ctx context.Context, execution *workflow.Execution, result *models.AiderExecutionResult) {
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		if line != "" {
			execution.Log(ctx, line)
		}
	}

	if result.AttemptCount > 1 {
		execution.Log(ctx, fmt.Sprintf("%s needed %d attempts", result.Operation, result.AttemptCount))
	}
}
