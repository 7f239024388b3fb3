// Package eventbus carries jobs to workers and status envelopes back to the API.
package eventbus

import (
	"context"
	"time"

	"github.com/dukex/devflow/pkg/events"
	"github.com/dukex/devflow/pkg/models"
)

// Dispatcher enqueues jobs and returns the broker message id.
type Dispatcher interface {
	Dispatch(ctx context.Context, job events.Job) (string, error)
}

// JobHandler processes one job. A returned error asks the broker to redeliver.
type JobHandler func(ctx context.Context, job events.Job) error

type Consumer interface {
	Consume(ctx context.Context, handler JobHandler) error
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, envelope models.Envelope) error
}

type StatusHandler func(ctx context.Context, envelope models.Envelope)

type StatusSubscriber interface {
	SubscribeStatus(ctx context.Context, handler StatusHandler) error
}

// LatencyRecorder observes queue latency when a job is consumed.
type LatencyRecorder interface {
	RecordQueueLatency(ctx context.Context, latency time.Duration, task string)
}

type EventBus interface {
	Dispatcher
	Consumer
	StatusPublisher
	StatusSubscriber
	Close() error
}
