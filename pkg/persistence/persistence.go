// Package persistence provides the data storage abstraction for inbound events.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dukex/devflow/pkg/models"
)

// EventStore persists inbound events and the task context written back after a run.
type EventStore interface {
	SaveEvent(ctx context.Context, event *models.Event) error
	EventByID(ctx context.Context, id string) (*models.Event, error)
	// UpdateTaskContext overwrites the stored task context (last writer wins).
	UpdateTaskContext(ctx context.Context, id string, taskContext json.RawMessage) error
	ExecutionBySourceEventID(ctx context.Context, sourceEventID string) (string, error)
	ExecutionByFingerprint(ctx context.Context, fingerprint string) (string, error)
	LatestEventByProject(ctx context.Context, projectID string) (*models.Event, error)
	// UnprocessedEvents lists events without a task context created before olderThan.
	UnprocessedEvents(ctx context.Context, olderThan time.Time, limit int) ([]*models.Event, error)
}

type Persistence interface {
	EventStore
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}
