// Package selecttask picks the task a DevTeam run works on.
package selecttask

import (
	"context"
	"errors"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/workflow"
)

const Name = "select_task"

var ErrNoTask = errors.New("event carries no task descriptor")

type Node struct{}

func New() *Node {
	return &Node{}
}

func (n *Node) Name() string {
	return Name
}

func (n *Node) Execute(ctx context.Context, execution *workflow.Execution) (models.NodeResult, error) {
	task := execution.TaskContext.Event.Task
	if task == nil || task.ID == "" {
		return nil, ErrNoTask
	}

	taskContext := execution.TaskContext
	taskContext.SetMeta(models.MetaTaskID, task.ID)
	taskContext.SetMeta(models.MetaTaskTitle, task.Title)

	if len(task.Files) > 0 {
		files := make([]any, 0, len(task.Files))
		for _, file := range task.Files {
			files = append(files, file)
		}

		taskContext.SetMeta(models.MetaModifiedFiles, files)
	}

	execution.Log(ctx, "Selected task "+task.ID)

	return models.NodeResult{
		"task_id":  task.ID,
		"title":    task.Title,
		"priority": taskContext.Event.Priority,
	}, nil
}
