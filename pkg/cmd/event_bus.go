package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/devflow/pkg/channels/gochannel"
	"github.com/dukex/devflow/pkg/channels/kafka"
	"github.com/dukex/devflow/pkg/eventbus"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// EventBusConfig selects and configures the event bus transport.
type EventBusConfig struct {
	Provider      string
	Brokers       string
	ConsumerGroup string
}

func NewEventBus(config EventBusConfig, logger *slog.Logger, opts ...eventbus.Option) (eventbus.EventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch config.Provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(config.Brokers), config.ConsumerGroup)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub, opts...), nil
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create GoChannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, config.Provider)
	}
}
