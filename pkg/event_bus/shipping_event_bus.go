package event_bus

import (
	"encoding/json"
	"fmt"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// HealthTopic carries cluster health transitions from the monitor to the
// batching buffers.
const HealthTopic = "shipping.cluster.health"

// ShippingEventBus decouples the health monitor from the shipping path.
// Payloads cross the bus as JSON so publisher and subscriber never share a
// mutable value.
type ShippingEventBus[PayloadType any] interface {
	Subscribe(topic string, handler func(payload PayloadType) error, transactional bool) error
	Publish(topic string, payload PayloadType) error
}

type ShippingEventBusImpl[PayloadType any] struct {
	eventBus EventBus.Bus
	logger   *zap.Logger
}

func NewShippingEventBus[PayloadType any](
	eventBus EventBus.Bus,
	logger *zap.Logger,
) ShippingEventBus[PayloadType] {
	return &ShippingEventBusImpl[PayloadType]{
		eventBus: eventBus,
		logger:   logger,
	}
}

func (ev *ShippingEventBusImpl[PayloadType]) Subscribe(
	topic string,
	handler func(payload PayloadType) error,
	transactional bool,
) error {
	decode := func(raw string) {
		var payload PayloadType
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			ev.logger.Error("Discarding undecodable bus payload",
				zap.String("topic", topic),
				zap.Error(err),
			)
			return
		}
		if err := handler(payload); err != nil {
			ev.logger.Error("Bus handler returned an error",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
	if err := ev.eventBus.SubscribeAsync(topic, decode, transactional); err != nil {
		return fmt.Errorf("error subscribing to topic %s: %w", topic, err)
	}
	return nil
}

func (ev *ShippingEventBusImpl[PayloadType]) Publish(
	topic string,
	payload PayloadType,
) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshaling payload for topic %s: %w", topic, err)
	}
	ev.eventBus.Publish(topic, string(encoded))
	return nil
}
