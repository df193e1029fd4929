package events

import (
	"context"
	"fmt"

	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/mqtt"
)

// Publisher publishes MQTT messages. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTSink republishes events as JSON under the bridge's topic prefix.
//
// The topic is <prefix>/event/<source>/<type>, where source is the slug of
// the unique ID, or of the doorbell name when the unique ID is empty.
// Events are momentary, so messages are never retained.
type MQTTSink struct {
	publisher Publisher
	topics    mqtt.Topics
	qos       byte
}

// NewMQTTSink creates an MQTTSink.
func NewMQTTSink(publisher Publisher, topics mqtt.Topics, qos byte) *MQTTSink {
	return &MQTTSink{publisher: publisher, topics: topics, qos: qos}
}

// TopicFor returns the topic ev is published on.
func (s *MQTTSink) TopicFor(ev Event) string {
	source := ev.UniqueID
	if source == "" {
		source = ev.Doorbell
	}
	return s.topics.Event(source, ev.Type)
}

// Emit publishes ev.
func (s *MQTTSink) Emit(_ context.Context, ev Event) error {
	payload, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return s.publisher.Publish(s.TopicFor(ev), payload, s.qos, false)
}
