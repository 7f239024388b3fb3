package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/devflow/pkg/events"
	"github.com/dukex/devflow/pkg/models"
)

type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
	latency    LatencyRecorder
	now        func() time.Time
}

type Option func(*WatermillEventBus)

func WithLatencyRecorder(recorder LatencyRecorder) Option {
	return func(eb *WatermillEventBus) {
		eb.latency = recorder
	}
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber, opts ...Option) *WatermillEventBus {
	bus := &WatermillEventBus{
		publisher:  pub,
		subscriber: sub,
		logger:     logger.With("module", "eventbus"),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(bus)
	}

	return bus
}

var _ EventBus = (*WatermillEventBus)(nil)

func (eb *WatermillEventBus) Dispatch(ctx context.Context, job events.Job) (string, error) {
	if job.Headers.EnqueuedAt.IsZero() {
		job.Headers.EnqueuedAt = eb.now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job %s: %w", job.Task, err)
	}

	id := watermill.NewULID()
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)

	for key, value := range job.Metadata() {
		msg.Metadata.Set(key, value)
	}

	if err := eb.publisher.Publish(events.JobTopic, msg); err != nil {
		return "", fmt.Errorf("failed to publish job %s: %w", job.Task, err)
	}

	return id, nil
}

func (eb *WatermillEventBus) Consume(ctx context.Context, handler JobHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.JobTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.JobTopic, err)
	}

	go func() {
		for msg := range messages {
			eb.handleJob(ctx, msg, handler)
		}
	}()

	return nil
}

func (eb *WatermillEventBus) handleJob(ctx context.Context, msg *message.Message, handler JobHandler) {
	var job events.Job

	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		eb.logger.ErrorContext(ctx, "Dropping undecodable job", "message_id", msg.UUID, "error", err)
		msg.Ack()

		return
	}

	if eb.latency != nil && !job.Headers.EnqueuedAt.IsZero() {
		eb.latency.RecordQueueLatency(ctx, eb.now().Sub(job.Headers.EnqueuedAt), job.Task)
	}

	if err := handler(ctx, job); err != nil {
		eb.logger.WarnContext(ctx, "Job handler failed, requesting redelivery",
			"message_id", msg.UUID,
			"task", job.Task,
			"correlation_id", job.Headers.CorrelationID,
			"error", err,
		)
		msg.Nack()

		return
	}

	msg.Ack()
}

func (eb *WatermillEventBus) PublishStatus(ctx context.Context, envelope models.Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", envelope.Type, err)
	}

	msg := message.NewMessage(watermill.NewULID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.ProjectIDMetadataKey, envelope.ProjectID)
	msg.Metadata.Set(events.EnvelopeTypeMetadataKey, string(envelope.Type))

	if err := eb.publisher.Publish(events.StatusTopic, msg); err != nil {
		return fmt.Errorf("failed to publish %s envelope: %w", envelope.Type, err)
	}

	return nil
}

func (eb *WatermillEventBus) SubscribeStatus(ctx context.Context, handler StatusHandler) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.StatusTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.StatusTopic, err)
	}

	go func() {
		for msg := range messages {
			var envelope models.Envelope

			if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
				eb.logger.ErrorContext(ctx, "Dropping undecodable status envelope", "message_id", msg.UUID, "error", err)
				msg.Ack()

				continue
			}

			handler(ctx, envelope)
			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
