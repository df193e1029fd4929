package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types and device class carried by doorbell events.
const (
	// TypeRing is the only event a doorbell emits.
	TypeRing = "ring"

	// DeviceClassDoorbell identifies the source kind for downstream consumers.
	DeviceClassDoorbell = "doorbell"
)

// Types returns the event types a doorbell can emit.
func Types() []string {
	return []string{TypeRing}
}

// Event is a momentary occurrence raised by a doorbell. It has no
// persistent state; sinks decide what to do with it.
type Event struct {
	// ID is a random UUID unique to this occurrence.
	ID string `json:"id"`

	// Type is always TypeRing today.
	Type string `json:"event_type"`

	DeviceClass string `json:"device_class"`

	// Doorbell is the configured display name.
	Doorbell string `json:"doorbell"`

	// UniqueID is the doorbell's identity key. Empty when it could not be built.
	UniqueID string `json:"unique_id"`

	// Topic is the configured subscribe filter.
	Topic string `json:"topic"`

	// MessageTopic is the concrete topic the triggering message arrived on.
	// It differs from Topic when the filter has wildcards.
	MessageTopic string `json:"message_topic"`

	Timestamp time.Time `json:"timestamp"`
}

// JSON returns the wire form shared by the MQTT and Redis sinks.
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f(ctx, ev).
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}
