// Package sweeper re-enqueues stored events that were never picked up by a worker.
package sweeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/events"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule    = "*/5 * * * *"
	DefaultGracePeriod = 5 * time.Minute
	DefaultBatchSize   = 100
)

type Sweeper struct {
	store      persistence.EventStore
	dispatcher eventbus.Dispatcher
	schedule   string
	grace      time.Duration
	batchSize  int
	cron       *cron.Cron
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Sweeper)

// WithGracePeriod sets how old an unprocessed event must be before it is redispatched.
func WithGracePeriod(grace time.Duration) Option {
	return func(s *Sweeper) {
		s.grace = grace
	}
}

func WithBatchSize(size int) Option {
	return func(s *Sweeper) {
		s.batchSize = size
	}
}

func New(store persistence.EventStore, dispatcher eventbus.Dispatcher, schedule string, logger *slog.Logger, opts ...Option) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	sweeper := &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		schedule:   schedule,
		grace:      DefaultGracePeriod,
		batchSize:  DefaultBatchSize,
		logger:     logger.With("module", "sweeper", "schedule", schedule),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	return sweeper, nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting sweeper", "grace_period", s.grace)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.schedule, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop waits for a running sweep to finish or for ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}

	s.logger.InfoContext(ctx, "Stopping sweeper")

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	count, err := s.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Sweep finished with errors", "redispatched", count, "error", err)

		return
	}

	if count > 0 {
		s.logger.InfoContext(ctx, "Sweep redispatched events", "redispatched", count)
	}
}

// Sweep redispatches events older than the grace period that still have no
// task context. It returns how many jobs were published.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	pending, err := s.store.UnprocessedEvents(ctx, s.now().Add(-s.grace), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unprocessed events: %w", err)
	}

	var (
		count int
		errs  []error
	)

	for _, event := range pending {
		job := events.NewProcessEventJob(event, eventType(event.Data))

		jobID, err := s.dispatcher.Dispatch(ctx, job)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", event.ID, err))

			continue
		}

		s.logger.DebugContext(ctx, "Redispatched event",
			"execution_id", event.ID,
			"correlation_id", event.CorrelationID,
			"task_id", jobID,
		)

		count++
	}

	return count, errors.Join(errs...)
}

func eventType(data json.RawMessage) string {
	var head struct {
		Type string `json:"type"`
	}

	_ = json.Unmarshal(data, &head)

	return head.Type
}
