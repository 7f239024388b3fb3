package broadcast

import (
	"context"
	"log/slog"

	"github.com/dukex/devflow/pkg/eventbus"
	"github.com/dukex/devflow/pkg/models"
)

// BusBroadcaster publishes envelopes on the status topic for another process to fan out.
type BusBroadcaster struct {
	publisher eventbus.StatusPublisher
}

func NewBusBroadcaster(publisher eventbus.StatusPublisher) *BusBroadcaster {
	return &BusBroadcaster{publisher: publisher}
}

func (b *BusBroadcaster) Broadcast(ctx context.Context, envelope models.Envelope) error {
	return b.publisher.PublishStatus(ctx, envelope)
}

// Relay feeds envelopes from the status topic into a local broadcaster.
func Relay(ctx context.Context, subscriber eventbus.StatusSubscriber, target Broadcaster, logger *slog.Logger) error {
	logger = logger.With("module", "broadcast_relay")

	return subscriber.SubscribeStatus(ctx, func(ctx context.Context, envelope models.Envelope) {
		if err := target.Broadcast(ctx, envelope); err != nil {
			logger.ErrorContext(ctx, "Failed to relay envelope",
				"type", envelope.Type,
				"project_id", envelope.ProjectID,
				"error", err,
			)
		}
	})
}
