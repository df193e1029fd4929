// Package events defines the doorbell ring event and the sinks it is
// delivered to.
//
// The bridge emits each ring once to a Fanout, which forwards it to every
// enabled sink:
//   - LogSink writes a structured log line
//   - MetricsSink counts rings per doorbell
//   - MQTTSink republishes JSON under <prefix>/event/<source>/ring
//   - InfluxSink records a doorbell_events point
//   - RedisSink publishes on a channel and keeps the last ring per doorbell
//   - Journal appends to the SQLite ring_events table
//
// Sinks must be safe for concurrent use; different doorbells emit in parallel.
package events
