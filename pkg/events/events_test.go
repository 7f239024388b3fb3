package events_test

import (
	"testing"
	"time"

	"github.com/dukex/devflow/pkg/events"
	"github.com/dukex/devflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessEventJob(t *testing.T) {
	t.Parallel()

	event := &models.Event{
		ID:            "exec-1",
		ProjectID:     "acme/web",
		CorrelationID: "corr_evt_1",
	}

	job := events.NewProcessEventJob(event, "task.created")
	job.Headers.EnqueuedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, events.ProcessIncomingEventTask, job.Task)
	assert.Equal(t, []string{"exec-1"}, job.Args)

	id, err := job.EventID()
	require.NoError(t, err)
	assert.Equal(t, "exec-1", id)

	metadata := job.Metadata()
	assert.Equal(t, "process_incoming_event", metadata[events.TaskMetadataKey])
	assert.Equal(t, "corr_evt_1", metadata[events.CorrelationIDMetadataKey])
	assert.Equal(t, "exec-1", metadata[events.EventIDMetadataKey])
	assert.Equal(t, "acme/web", metadata[events.ProjectIDMetadataKey])
	assert.Equal(t, "task.created", metadata[events.EventTypeMetadataKey])
	assert.Equal(t, "2026-03-01T10:00:00Z", metadata[events.EnqueuedAtMetadataKey])
}

func TestJob_EventIDMissing(t *testing.T) {
	t.Parallel()

	_, err := events.Job{Task: events.ProcessIncomingEventTask}.EventID()
	require.ErrorIs(t, err, events.ErrMalformedJob)
}
