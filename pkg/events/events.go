// Package events defines the job and status messages exchanged over the event bus.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/devflow/pkg/models"
)

// Topics.
const (
	JobTopic    = "devflow.jobs"   // Worker job queue
	StatusTopic = "devflow.status" // Status envelopes relayed to WebSocket servers
)

// ProcessIncomingEventTask is the fixed task name of the ingestion job.
const ProcessIncomingEventTask = "process_incoming_event"

// Message metadata keys.
const (
	TaskMetadataKey          = "task"
	CorrelationIDMetadataKey = "correlation_id"
	EventIDMetadataKey       = "event_id"
	ProjectIDMetadataKey     = "project_id"
	EventTypeMetadataKey     = "event_type"
	EnqueuedAtMetadataKey    = "enqueued_at"
	EnvelopeTypeMetadataKey  = "envelope_type"
)

var ErrMalformedJob = errors.New("malformed job")

// JobHeaders travel with a job so the worker can log and trace before loading the event.
type JobHeaders struct {
	CorrelationID string    `json:"correlation_id"`
	EventID       string    `json:"event_id"`
	ProjectID     string    `json:"project_id"`
	EventType     string    `json:"event_type"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

// Job is a queued unit of work: a task name, positional args and headers.
type Job struct {
	Task    string     `json:"task"`
	Args    []string   `json:"args"`
	Headers JobHeaders `json:"headers"`
}

// NewProcessEventJob builds the job that processes a persisted event.
func NewProcessEventJob(event *models.Event, eventType string) Job {
	return Job{
		Task: ProcessIncomingEventTask,
		Args: []string{event.ID},
		Headers: JobHeaders{
			CorrelationID: event.CorrelationID,
			EventID:       event.ID,
			ProjectID:     event.ProjectID,
			EventType:     eventType,
		},
	}
}

// EventID returns the event id positional argument.
func (j Job) EventID() (string, error) {
	if len(j.Args) == 0 || j.Args[0] == "" {
		return "", fmt.Errorf("%w: task %q has no event id argument", ErrMalformedJob, j.Task)
	}

	return j.Args[0], nil
}

// Metadata flattens the headers into string message metadata.
func (j Job) Metadata() map[string]string {
	return map[string]string{
		TaskMetadataKey:          j.Task,
		CorrelationIDMetadataKey: j.Headers.CorrelationID,
		EventIDMetadataKey:       j.Headers.EventID,
		ProjectIDMetadataKey:     j.Headers.ProjectID,
		EventTypeMetadataKey:     j.Headers.EventType,
		EnqueuedAtMetadataKey:    j.Headers.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	}
}
