package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/channels/gochannel"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/channels/kafka"
	"github.com/jvalencia1020/novaura-acs-processor-sub000/pkg/eventbus"
)

// NewEventBus builds the lifecycle event bus for provider: "gochannel",
// "kafka" or "none".
//
//nolint:ireturn // callers depend on the EventBus contract
func NewEventBus(provider, brokers string, serviceName string, logger *slog.Logger) (eventbus.EventBus, error) {
	watermillLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "", "none":
		return eventbus.Noop{}, nil
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermillLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create GoChannel pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermillLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("%w: event bus %q", ErrUnsupportedProvider, provider)
	}
}
