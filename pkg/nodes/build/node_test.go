package build_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/devflow/pkg/executor"
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/nodes/build"
	"github.com/dukex/devflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, op executor.Operation, maxAttempts int) (*models.AiderExecutionResult, error) {
	args := m.Called(ctx, op, maxAttempts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.AiderExecutionResult), args.Error(1)
}

func execution() *workflow.Execution {
	taskContext := models.NewTaskContext(models.RequestEvent{ID: "evt_1"}, models.WorkflowTypeDevTeamAutomation, time.Now())
	taskContext.SetMeta(models.MetaRepoPath, "/srv/workspaces/acme/web")

	return &workflow.Execution{
		ID:          "exec-1",
		ProjectID:   "acme/web",
		TaskContext: taskContext,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func byName(name string) any {
	return mock.MatchedBy(func(op executor.Operation) bool {
		return op.Name == name &&
			op.CorrelationID == "corr_evt_1" &&
			op.Container.CopyDir == "/srv/workspaces/acme/web" &&
			op.Container.WorkDir == build.ContainerPath &&
			op.Timeout == build.OperationTimeout
	})
}

func TestBuild(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, byName("npm ci"), 2).
		Return(&models.AiderExecutionResult{Operation: "npm ci", Success: true, AttemptCount: 1, Stdout: "added 10 packages"}, nil)
	runner.On("Run", mock.Anything, byName("npm run build"), 2).
		Return(&models.AiderExecutionResult{
			Operation:     "npm run build",
			Success:       true,
			AttemptCount:  2,
			RetryAttempts: []models.RetryAttempt{{Attempt: 1, ExitCode: 1}},
		}, nil)

	ex := execution()

	result, err := build.New(runner, "node:20").Execute(t.Context(), ex)
	require.NoError(t, err)

	operations, ok := result["operations"].([]any)
	require.True(t, ok)
	require.Len(t, operations, 2)
	assert.Equal(t, 2, operations[1].(map[string]any)["attempt_count"])

	logs := ex.TaskContext.Metadata[models.MetaLogs].([]any)
	assert.Contains(t, logs, "added 10 packages")
	assert.Contains(t, logs, "npm run build needed 2 attempts")
	runner.AssertExpectations(t)
}

func TestBuild_StopsOnFailure(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{}
	runner.On("Run", mock.Anything, byName("npm ci"), 2).
		Return(&models.AiderExecutionResult{Operation: "npm ci", AttemptCount: 2}, &executor.ExecutionError{Operation: "npm ci", ExitCode: 1, Err: errors.New("exit 1")})

	_, err := build.New(runner, "node:20").Execute(t.Context(), execution())
	require.Error(t, err)
	assert.True(t, executor.IsExecutionError(err))
	runner.AssertNotCalled(t, "Run", mock.Anything, byName("npm run build"), 2)
}

func TestBuild_RequiresRepository(t *testing.T) {
	t.Parallel()

	ex := execution()
	delete(ex.TaskContext.Metadata, models.MetaRepoPath)

	_, err := build.New(&mockRunner{}, "node:20").Execute(t.Context(), ex)
	require.ErrorIs(t, err, build.ErrNoRepository)
}
