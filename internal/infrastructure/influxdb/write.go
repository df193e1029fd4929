package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RingMeasurement is the measurement every ring point is written to.
const RingMeasurement = "doorbell_events"

// Ring describes one doorbell press for the time-series store.
type Ring struct {
	Doorbell string
	Topic    string
	UniqueID string
	At       time.Time
}

// RingPoint converts a ring into a line-protocol point.
//
// Doorbell, topic and unique ID become tags; the single field "rings" is 1
// so sum() over a window counts presses. An empty unique ID is left out.
func RingPoint(r Ring) *write.Point {
	tags := map[string]string{
		"doorbell": r.Doorbell,
		"topic":    r.Topic,
	}
	if r.UniqueID != "" {
		tags["unique_id"] = r.UniqueID
	}

	at := r.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(RingMeasurement, tags, map[string]any{"rings": 1}, at)
}

// WriteRing queues a ring point. The write is non-blocking; failures are
// reported through SetOnError. Returns ErrNotConnected after Close.
func (c *Client) WriteRing(r Ring) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(RingPoint(r))
	return nil
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
	return nil
}
