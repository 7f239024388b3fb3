// Package gitpush pushes the task branch and signals completion.
package gitpush

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/devflow/pkg/containers"
	"github.com/dukex/devflow/pkg/executor"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/nodes/build"
	"github.com/dukex/devflow/pkg/workflow"
)

const (
	Name        = "git_push"
	PushTimeout = 2 * time.Minute
)

var ErrNoBranch = errors.New("no branch prepared")

// Completer marks an execution completed once the push succeeded.
type Completer interface {
	UpdateToCompleted(ctx context.Context, executionID, projectID string) (*models.StatusProjection, error)
}

type Node struct {
	runner    build.Runner
	completer Completer
	image     string
	remote    string
}

func New(runner build.Runner, completer Completer, image, remote string) *Node {
	if remote == "" {
		remote = "origin"
	}

	return &Node{
		runner:    runner,
		completer: completer,
		image:     image,
		remote:    remote,
	}
}

func (n *Node) Name() string {
	return Name
}

func (n *Node) Execute(ctx context.Context, execution *workflow.Execution) (models.NodeResult, error) {
	taskContext := execution.TaskContext

	branch := taskContext.MetaString(models.MetaBranch)
	if branch == "" {
		return nil, ErrNoBranch
	}

	op := executor.Operation{
		Name:          "git push",
		Command:       []string{"git", "push", n.remote, "HEAD:refs/heads/" + branch},
		CorrelationID: execution.CorrelationID(),
		Timeout:       PushTimeout,
		Container: containers.Spec{
			Image:   n.image,
			WorkDir: build.ContainerPath,
			CopyDir: taskContext.MetaString(models.MetaRepoPath),
		},
	}

	result, err := n.runner.Run(ctx, op, models.MaxAttemptsCeiling)
	if err != nil {
		return nil, fmt.Errorf("git push: %w", err)
	}

	execution.Log(ctx, fmt.Sprintf("Pushed %s to %s", branch, n.remote))

	projection, err := n.completer.UpdateToCompleted(ctx, execution.ID, execution.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark execution completed: %w", err)
	}

	return models.NodeResult{
		"branch":        branch,
		"remote":        n.remote,
		"attempt_count": result.AttemptCount,
		"final_status":  string(projection.Status),
	}, nil
}
