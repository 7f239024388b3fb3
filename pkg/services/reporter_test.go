package services

import (
	"errors"
	"testing"
	"time"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/projection"
	"github.com/dukex/devflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusReporter(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	reporter := NewStatusReporter(projection.NewEngine(discardLogger()), broadcaster, discardLogger())

	taskContext := models.NewTaskContext(models.RequestEvent{ID: "evt_1"}, models.WorkflowTypeDevTeamAutomation, time.Now())
	taskContext.Nodes.Set("select_task", models.NodeResult{"status": "completed"})
	taskContext.Nodes.Set("prep", models.NodeResult{"status": "running"})

	execution := &workflow.Execution{ID: "exec-1", ProjectID: "acme/web", TaskContext: taskContext, Logger: discardLogger()}

	reporter.Checkpointed(t.Context(), execution)
	reporter.Logged(t.Context(), execution, "npm ci: added 120 packages")
	reporter.Failed(t.Context(), execution, "build", errors.New("exit status 1"))

	require.Equal(t, []models.EnvelopeType{
		models.EnvelopeExecutionUpdate,
		models.EnvelopeExecutionLog,
		models.EnvelopeError,
	}, broadcaster.types())

	update, ok := broadcaster.envelopes[0].Payload.(models.StatusProjection)
	require.True(t, ok)
	assert.Equal(t, models.StatusRunning, update.Status)
	assert.InDelta(t, 50.0, update.Progress, 0.001)

	failure, ok := broadcaster.envelopes[2].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "build", failure["node"])
	assert.Equal(t, "corr_evt_1", failure["correlation_id"])
}

func TestStatusReporter_SkipsExecutionsWithoutProject(t *testing.T) {
	broadcaster := &recordingBroadcaster{}
	reporter := NewStatusReporter(projection.NewEngine(discardLogger()), broadcaster, discardLogger())

	execution := &workflow.Execution{ID: "exec-1", TaskContext: &models.TaskContext{}, Logger: discardLogger()}
	reporter.Checkpointed(t.Context(), execution)

	assert.Empty(t, broadcaster.types())
}
