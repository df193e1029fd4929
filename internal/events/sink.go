package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger is the structured logging interface used by sinks.
type Logger interface {
	Info(msg string, keysAndValues ...any)
}

// Fanout delivers each event to every registered sink in registration order.
//
// A failing sink does not stop delivery to the rest; all failures are joined
// into the returned error, each prefixed with the sink's name.
type Fanout struct {
	mu      sync.RWMutex
	sinks   []namedSink
	onError func(sink string, err error)
}

type namedSink struct {
	name string
	sink Sink
}

// NewFanout creates an empty Fanout.
func NewFanout() *Fanout {
	return &Fanout{}
}

// Add registers sink under name.
func (f *Fanout) Add(name string, sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, namedSink{name: name, sink: sink})
}

// SetOnError sets a callback invoked once per failing sink.
func (f *Fanout) SetOnError(callback func(sink string, err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = callback
}

// Names returns the registered sink names in order.
func (f *Fanout) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.name)
	}
	return names
}

// Emit sends ev to every sink.
func (f *Fanout) Emit(ctx context.Context, ev Event) error {
	f.mu.RLock()
	sinks := f.sinks
	onError := f.onError
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		if err := s.sink.Emit(ctx, ev); err != nil {
			if onError != nil {
				onError(s.name, err)
			}
			errs = append(errs, fmt.Errorf("%s sink: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes each event to the service log.
type LogSink struct {
	logger Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Emit logs ev at info level.
func (s *LogSink) Emit(_ context.Context, ev Event) error {
	s.logger.Info("doorbell event",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"doorbell", ev.Doorbell,
		"unique_id", ev.UniqueID,
		"topic", ev.Topic,
		"message_topic", ev.MessageTopic,
	)
	return nil
}

// RingCounter counts rings per doorbell. Satisfied by *metrics.Metrics.
type RingCounter interface {
	RingEmitted(doorbell string)
}

// MetricsSink counts each event.
type MetricsSink struct {
	counter RingCounter
}

// NewMetricsSink creates a MetricsSink.
func NewMetricsSink(counter RingCounter) *MetricsSink {
	return &MetricsSink{counter: counter}
}

// Emit increments the ring counter for ev's doorbell.
func (s *MetricsSink) Emit(_ context.Context, ev Event) error {
	s.counter.RingEmitted(ev.Doorbell)
	return nil
}
