package events

import (
	"context"

	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/influxdb"
)

// RingWriter records rings as time-series points. Satisfied by *influxdb.Client.
type RingWriter interface {
	WriteRing(r influxdb.Ring) error
}

// InfluxSink writes one point per event.
type InfluxSink struct {
	writer RingWriter
}

// NewInfluxSink creates an InfluxSink.
func NewInfluxSink(writer RingWriter) *InfluxSink {
	return &InfluxSink{writer: writer}
}

// Emit queues a point for ev. Delivery is asynchronous.
func (s *InfluxSink) Emit(_ context.Context, ev Event) error {
	return s.writer.WriteRing(influxdb.Ring{
		Doorbell: ev.Doorbell,
		Topic:    ev.Topic,
		UniqueID: ev.UniqueID,
		At:       ev.Timestamp,
	})
}
