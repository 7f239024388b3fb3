// Package prep prepares the working branch and repository path for a task.
package prep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/workflow"
)

const (
	Name         = "prep"
	BranchPrefix = "devteam/"
)

var (
	ErrNoTaskSelected = errors.New("no task selected before prep")
	unsafeBranchChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

type Node struct {
	workspaceRoot string
	checkout      Checkout
}

// New creates a prep node that checks repositories out under workspaceRoot.
func New(workspaceRoot string, checkout Checkout) *Node {
	return &Node{workspaceRoot: workspaceRoot, checkout: checkout}
}

func (n *Node) Name() string {
	return Name
}

// BranchName derives the working branch for a task id.
func BranchName(taskID string) string {
	slug := strings.Trim(unsafeBranchChars.ReplaceAllString(taskID, "-"), "-")

	return BranchPrefix + strings.ToLower(slug)
}

func (n *Node) Execute(ctx context.Context, execution *workflow.Execution) (models.NodeResult, error) {
	taskContext := execution.TaskContext

	taskID := taskContext.MetaString(models.MetaTaskID)
	if taskID == "" {
		return nil, ErrNoTaskSelected
	}

	if err := models.ValidateProjectID(execution.ProjectID); err != nil {
		return nil, err
	}

	repoPath := filepath.Join(n.workspaceRoot, filepath.FromSlash(execution.ProjectID))
	branch := BranchName(taskID)

	if err := n.checkout.Checkout(ctx, execution.ProjectID, repoPath, branch); err != nil {
		return nil, fmt.Errorf("failed to check out %s: %w", execution.ProjectID, err)
	}

	taskContext.SetMeta(models.MetaBranch, branch)
	taskContext.SetMeta(models.MetaRepoPath, repoPath)
	taskContext.SetMeta(models.MetaStatus, models.MetaStatusPrepared)

	execution.Log(ctx, fmt.Sprintf("Prepared branch %s at %s", branch, repoPath))

	return models.NodeResult{
		"branch":    branch,
		"repo_path": repoPath,
	}, nil
}
