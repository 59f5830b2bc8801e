package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/arionlabs/arion/pkg/channels/gochannel"
	"github.com/arionlabs/arion/pkg/channels/kafka"
	"github.com/arionlabs/arion/pkg/eventbus"
)

// NewEventBus creates an event bus instance based on the provider. The
// gochannel provider is in-process only; kafka is the multi-service setup.
func NewEventBus(provider, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel", "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create gochannel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("unsupported event bus provider: " + provider)
	}
}
