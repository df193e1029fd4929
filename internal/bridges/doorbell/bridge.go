package doorbell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/doorbell-bridge/internal/events"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/config"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/mqtt"
)

// Bridge operation constants.
const (
	// defaultSubscribeTimeout bounds each subscribe when Options leaves it unset.
	defaultSubscribeTimeout = 5 * time.Second

	// emitTimeout bounds delivery of one event to the sink.
	emitTimeout = 5 * time.Second
)

// Message outcomes reported to the Recorder.
const (
	OutcomeRing       = "ring"
	OutcomeIgnored    = "ignored"
	OutcomeSuppressed = "suppressed"
)

// Handle is an open broker subscription. It is opaque to the bridge.
type Handle interface {
	Filter() string
}

// Broker is the subset of MQTT operations the bridge needs.
// This is satisfied by *mqtt.Client (via adapter in main.go).
type Broker interface {
	// Subscribe opens a subscription and binds handler to it.
	Subscribe(ctx context.Context, filter string, qos byte, handler func(topic string, payload []byte)) (Handle, error)

	// Unsubscribe closes a subscription. Repeated calls are no-ops.
	Unsubscribe(h Handle) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// EventSink receives ring events. It must be safe for concurrent use.
type EventSink interface {
	Emit(ctx context.Context, ev events.Event) error
}

// Recorder receives bridge metrics. It is optional.
type Recorder interface {
	MessageHandled(topic, outcome string)
	DecodeWarning(topic string)
	SubscribeFailed(topic string)
	SetSubscribed(n int)
}

// Logger is the structured logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds the dependencies for Configure.
type Options struct {
	// Broker is the MQTT connection. Required.
	Broker Broker

	// Sink receives every ring event. Required.
	Sink EventSink

	// QoS for doorbell subscriptions.
	QoS byte

	// SubscribeTimeout bounds each subscribe attempt in Start.
	SubscribeTimeout time.Duration

	// Logger is optional structured logger.
	Logger Logger

	// Metrics is optional.
	Metrics Recorder

	// Now overrides the event clock. Defaults to time.Now.
	Now func() time.Time
}

// Bridge maps MQTT topics to doorbell ring events.
// It owns one Subscription per valid doorbell entry, in configuration order.
//
// Thread Safety: All methods are safe for concurrent use. Handlers for one
// Subscription run one at a time; different Subscriptions share no state.
type Bridge struct {
	broker  Broker
	sink    EventSink
	metrics Recorder
	logger  Logger
	qos     byte
	timeout time.Duration
	now     func() time.Time

	subs []*Subscription
}

// Configure builds a Bridge from doorbell entries without touching the broker.
//
// Each entry's topic is checked against the MQTT topic-filter grammar.
// Invalid entries are skipped and reported as *ConfigError values joined in
// the returned error; the Bridge still holds every valid entry, each
// Unsubscribed. A nil Bridge is returned only when Broker or Sink is missing.
//
// An absent name becomes config.DefaultDoorbellName. Entries whose identity
// key cannot be built, or collides with an earlier entry, are logged and kept.
func Configure(entries []config.DoorbellConfig, opts Options) (*Bridge, error) {
	if opts.Broker == nil {
		return nil, fmt.Errorf("%w: broker is required", ErrInvalidConfig)
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("%w: event sink is required", ErrInvalidConfig)
	}

	b := &Bridge{
		broker:  opts.Broker,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		qos:     opts.QoS,
		timeout: opts.SubscribeTimeout,
		now:     opts.Now,
		subs:    make([]*Subscription, 0, len(entries)),
	}
	if b.timeout <= 0 {
		b.timeout = defaultSubscribeTimeout
	}
	if b.now == nil {
		b.now = time.Now
	}

	var errs []error
	seen := make(map[string]string, len(entries))

	for i, entry := range entries {
		if err := mqtt.ValidateSubscribeFilter(entry.Topic); err != nil {
			errs = append(errs, &ConfigError{Index: i, Topic: entry.Topic, Err: err})
			b.logWarn("doorbell entry rejected", "index", i, "topic", entry.Topic, "error", err)
			continue
		}

		name := entry.DisplayName()
		key, err := identityKey(entry.Topic, name)
		if err != nil {
			b.logWarn("doorbell has no unique identity", "topic", entry.Topic, "name", name, "error", err)
		} else if prev, dup := seen[key]; dup {
			b.logWarn("duplicate doorbell identity",
				"unique_id", key,
				"topic", entry.Topic,
				"first_name", prev)
		} else {
			seen[key] = name
		}

		b.subs = append(b.subs, newSubscription(entry.Topic, name, key))
	}

	b.logInfo("doorbell bridge configured",
		"doorbells", len(b.subs),
		"rejected", len(errs))

	return b, errors.Join(errs...)
}

// Start opens a broker subscription for every Unsubscribed doorbell.
//
// Subscriptions are attempted concurrently, each bounded by the subscribe
// timeout and by ctx. A failure on one topic does not affect the others;
// every failure is returned as a *SubscribeError wrapping
// ErrBrokerUnavailable, joined. Doorbells already subscribed, or being
// subscribed by a concurrent Start, are left alone.
func (b *Bridge) Start(ctx context.Context) error {
	errs := make([]error, len(b.subs))

	var wg sync.WaitGroup
	for i, s := range b.subs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = b.subscribe(ctx, s)
		}()
	}
	wg.Wait()

	b.reportSubscribed()

	err := errors.Join(errs...)
	if err != nil {
		b.logWarn("doorbell bridge started with failures", "error", err)
	} else {
		b.logInfo("doorbell bridge started", "doorbells", len(b.subs))
	}
	return err
}

// subscribe drives one Subscription from Unsubscribed to Subscribed.
func (b *Bridge) subscribe(ctx context.Context, s *Subscription) error {
	s.mu.Lock()
	if s.state != StateUnsubscribed {
		s.mu.Unlock()
		return nil
	}
	if !b.broker.IsConnected() {
		s.mu.Unlock()
		return b.subscribeFailed(s, errNotConnected)
	}
	s.state = StateSubscribing
	s.gen++
	gen := s.gen
	subCtx, cancel := context.WithTimeout(ctx, b.timeout)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	handle, err := b.broker.Subscribe(subCtx, s.topic, b.qos, b.handlerFor(s, gen))

	s.mu.Lock()
	if s.gen != gen {
		// Stop ran while the subscribe was in flight.
		s.mu.Unlock()
		if err == nil {
			b.release(s, handle)
		}
		return &SubscribeError{Topic: s.topic, Name: s.name, Err: ErrStopped}
	}
	s.cancel = nil
	if err != nil {
		s.state = StateUnsubscribed
		s.mu.Unlock()
		return b.subscribeFailed(s, err)
	}
	s.handle = handle
	s.state = StateSubscribed
	s.mu.Unlock()

	b.logInfo("subscribed to doorbell", "topic", s.topic, "name", s.name)
	return nil
}

// subscribeFailed records and wraps a failed subscribe attempt.
func (b *Bridge) subscribeFailed(s *Subscription, cause error) error {
	if b.metrics != nil {
		b.metrics.SubscribeFailed(s.topic)
	}
	return &SubscribeError{
		Topic: s.topic,
		Name:  s.name,
		Err:   fmt.Errorf("%w: %w", ErrBrokerUnavailable, cause),
	}
}

// Stop closes every open subscription and cancels in-flight ones.
//
// Stop never fails and is idempotent; broker errors are logged. After Stop
// returns no handler of this bridge emits an event. Start may be called again.
func (b *Bridge) Stop() {
	for _, s := range b.subs {
		s.mu.Lock()
		switch s.state {
		case StateSubscribing:
			s.gen++
			s.state = StateUnsubscribed
			if s.cancel != nil {
				s.cancel()
				s.cancel = nil
			}
			s.mu.Unlock()

		case StateSubscribed:
			handle := s.handle
			s.handle = nil
			s.gen++
			s.state = StateUnsubscribed
			s.mu.Unlock()
			b.release(s, handle)

		default:
			s.mu.Unlock()
		}

		// A handler that was already running finishes before Stop moves on.
		s.handleMu.Lock()
		s.handleMu.Unlock()
	}

	b.reportSubscribed()
	b.logInfo("doorbell bridge stopped")
}

// release closes a broker handle, logging any failure.
func (b *Bridge) release(s *Subscription, handle Handle) {
	if handle == nil {
		return
	}
	if err := b.broker.Unsubscribe(handle); err != nil {
		b.logWarn("failed to unsubscribe doorbell", "topic", s.topic, "error", err)
	}
}

// handlerFor binds a broker callback to one generation of s.
func (b *Bridge) handlerFor(s *Subscription, gen uint64) func(topic string, payload []byte) {
	return func(topic string, payload []byte) {
		s.handleMu.Lock()
		defer s.handleMu.Unlock()

		if !s.live(gen) {
			b.record(s.topic, OutcomeSuppressed)
			return
		}
		b.handleMessage(s, topic, payload)
	}
}

// handleMessage turns one payload into at most one ring event.
func (b *Bridge) handleMessage(s *Subscription, topic string, payload []byte) {
	text, err := decodePayload(payload)
	if err != nil {
		b.logWarn("doorbell payload decoded lossily", "topic", topic, "error", err)
		if b.metrics != nil {
			b.metrics.DecodeWarning(s.topic)
		}
	}

	if !IsRing(text) {
		b.logDebug("doorbell payload ignored", "topic", topic)
		b.record(s.topic, OutcomeIgnored)
		return
	}

	ev := events.Event{
		ID:           uuid.NewString(),
		Type:         events.TypeRing,
		DeviceClass:  events.DeviceClassDoorbell,
		Doorbell:     s.name,
		UniqueID:     s.key,
		Topic:        s.topic,
		MessageTopic: topic,
		Timestamp:    b.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	if err := b.sink.Emit(ctx, ev); err != nil {
		b.logError("failed to emit doorbell event", "topic", s.topic, "event_id", ev.ID, "error", err)
	}
	b.record(s.topic, OutcomeRing)
}

// Subscriptions returns the doorbells in configuration order.
func (b *Bridge) Subscriptions() []*Subscription {
	out := make([]*Subscription, len(b.subs))
	copy(out, b.subs)
	return out
}

// Snapshot returns a point-in-time view of every doorbell.
func (b *Bridge) Snapshot() []Info {
	out := make([]Info, 0, len(b.subs))
	for _, s := range b.subs {
		out = append(out, s.info())
	}
	return out
}

// SubscribedCount returns how many doorbells hold a live broker handle.
func (b *Bridge) SubscribedCount() int {
	n := 0
	for _, s := range b.subs {
		if s.State() == StateSubscribed {
			n++
		}
	}
	return n
}

func (b *Bridge) reportSubscribed() {
	if b.metrics != nil {
		b.metrics.SetSubscribed(b.SubscribedCount())
	}
}

func (b *Bridge) record(topic, outcome string) {
	if b.metrics != nil {
		b.metrics.MessageHandled(topic, outcome)
	}
}

func (b *Bridge) logDebug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Error(msg, args...)
	}
}
