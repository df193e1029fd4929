package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/doorbell-bridge/internal/bridges/doorbell"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/mqtt"
)

// mqttBroker is the subset of *mqtt.Client the adapter uses.
type mqttBroker interface {
	Subscribe(ctx context.Context, filter string, qos byte, handler mqtt.MessageHandler) (*mqtt.Subscription, error)
	Unsubscribe(sub *mqtt.Subscription) error
	IsConnected() bool
}

// brokerAdapter adapts *mqtt.Client to doorbell.Broker.
type brokerAdapter struct {
	client mqttBroker
}

// Subscribe opens an MQTT subscription. The doorbell handler never fails,
// so the MQTT handler always reports success.
func (a *brokerAdapter) Subscribe(ctx context.Context, filter string, qos byte, handler func(topic string, payload []byte)) (doorbell.Handle, error) {
	sub, err := a.client.Subscribe(ctx, filter, qos, func(topic string, payload []byte) error {
		handler(topic, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe closes a handle returned by Subscribe.
func (a *brokerAdapter) Unsubscribe(h doorbell.Handle) error {
	sub, ok := h.(*mqtt.Subscription)
	if !ok {
		return fmt.Errorf("unexpected subscription handle %T", h)
	}
	return a.client.Unsubscribe(sub)
}

// IsConnected reports the MQTT connection state.
func (a *brokerAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
