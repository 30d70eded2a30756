package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/promion/pkg/channels/gochannel"
	"github.com/dukex/promion/pkg/channels/kafka"
	"github.com/dukex/promion/pkg/eventbus"
)

// NewEventBus creates an event bus from the provider name. Kafka brokers are
// given as a comma-separated list; the gochannel provider is in-process and
// meant for single-binary setups.
func NewEventBus(provider, serviceName, brokers string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName, strings.Split(brokers, ","))
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create in-process pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
