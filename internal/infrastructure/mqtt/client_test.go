package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/config"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeToken is a paho token that is either already complete or never completes.
type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakePaho implements pahomqtt.Client in memory. It records broker calls
// and lets tests deliver messages to the registered callback.
type fakePaho struct {
	mu           sync.Mutex
	connected    bool
	callbacks    map[string]pahomqtt.MessageHandler
	subscribes   []string
	unsubscribes []string
	published    []string
	subscribeErr map[string]error
	hang         map[string]bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{
		connected:    true,
		callbacks:    make(map[string]pahomqtt.MessageHandler),
		subscribeErr: make(map[string]error),
		hang:         make(map[string]bool),
	}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token { return completedToken(nil) }

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, _ byte, _ bool, _ interface{}) pahomqtt.Token {
	f.mu.Lock()
	f.published = append(f.published, topic)
	f.mu.Unlock()
	return completedToken(nil)
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, topic)
	if f.hang[topic] {
		return pendingToken()
	}
	if err := f.subscribeErr[topic]; err != nil {
		return completedToken(err)
	}
	f.callbacks[topic] = callback
	return completedToken(nil)
}

func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return completedToken(errors.New("not implemented"))
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		f.unsubscribes = append(f.unsubscribes, topic)
		delete(f.callbacks, topic)
	}
	return completedToken(nil)
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver hands a message to the callback registered on filter, as the
// paho router would.
func (f *fakePaho) deliver(filter, topic string, payload []byte) bool {
	f.mu.Lock()
	cb, ok := f.callbacks[filter]
	f.mu.Unlock()
	if !ok {
		return false
	}
	cb(f, &fakeMessage{topic: topic, payload: payload})
	return true
}

func (f *fakePaho) counts() (subs, unsubs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribes), len(f.unsubscribes)
}

// recordingLogger captures log calls.
type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "doorbell-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix:      "doorbell",
		SubscribeTimeout: 5,
	}
}

// newTestClient returns a connected Client backed by a fakePaho.
func newTestClient(t *testing.T) (*Client, *fakePaho) {
	t.Helper()
	fake := newFakePaho()
	c := newClient(testConfig(), nil)
	c.client = fake
	c.connected = true
	return c, fake
}

func noopHandler(string, []byte) error { return nil }

// =============================================================================
// Connection Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestClose_PublishesOfflineStatus(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	want := "doorbell/bridge/doorbell-test/status"
	if len(fake.published) != 1 || fake.published[0] != want {
		t.Errorf("published = %v, want [%s]", fake.published, want)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	c := newClient(testConfig(), nil)
	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestHealthCheck(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}

	fake.Disconnect(0)
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck(disconnected) error = %v, want ErrNotConnected", err)
	}
}

func TestHandleConnect_RestoresSubscriptions(t *testing.T) {
	c, fake := newTestClient(t)

	var connected bool
	c.SetOnConnect(func() { connected = true })

	if _, err := c.Subscribe(context.Background(), "home/doorbell", 1, noopHandler); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	c.handleConnect()

	subs, _ := fake.counts()
	if subs != 2 {
		t.Errorf("broker subscribes = %d, want 2 (initial + restore)", subs)
	}
	if !connected {
		t.Error("OnConnect callback was not invoked")
	}
}

func TestHandleDisconnect(t *testing.T) {
	c, _ := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var gotErr error
	c.SetOnDisconnect(func(err error) { gotErr = err })

	lost := errors.New("network down")
	c.handleDisconnect(lost)

	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
	if !errors.Is(gotErr, lost) {
		t.Errorf("OnDisconnect error = %v, want %v", gotErr, lost)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings = %d, want 1", len(logger.warns))
	}
}

// =============================================================================
// Subscription Tests
// =============================================================================

func TestSubscribe_Validation(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		filter  string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty filter", "", 1, noopHandler, ErrInvalidTopic},
		{"bad wildcard", "home/door+", 1, noopHandler, ErrInvalidTopic},
		{"invalid qos", "home/doorbell", 3, noopHandler, ErrInvalidQoS},
		{"nil handler", "home/doorbell", 1, nil, ErrSubscribeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := c.Subscribe(ctx, tt.filter, tt.qos, tt.handler)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
			if sub != nil {
				t.Error("Subscribe() returned a handle on error")
			}
		})
	}
}

func TestSubscribe_Disconnected(t *testing.T) {
	c, fake := newTestClient(t)
	fake.Disconnect(0)

	_, err := c.Subscribe(context.Background(), "home/doorbell", 1, noopHandler)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribe_DeliversToHandler(t *testing.T) {
	c, fake := newTestClient(t)

	var got []string
	sub, err := c.Subscribe(context.Background(), "home/+/doorbell", 1, func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if sub.Filter() != "home/+/doorbell" || sub.QoS() != 1 {
		t.Errorf("handle = (%q, %d), want (home/+/doorbell, 1)", sub.Filter(), sub.QoS())
	}
	if !c.HasSubscription("home/+/doorbell") || c.SubscriptionCount() != 1 {
		t.Error("subscription not tracked")
	}

	fake.deliver("home/+/doorbell", "home/front/doorbell", []byte("1"))

	if len(got) != 1 || got[0] != "home/front/doorbell=1" {
		t.Errorf("handler got %v, want [home/front/doorbell=1]", got)
	}
}

func TestSubscribe_SharedFilter(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	var order []int
	first, err := c.Subscribe(ctx, "home/doorbell", 1, func(string, []byte) error {
		order = append(order, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe(first) error = %v", err)
	}
	second, err := c.Subscribe(ctx, "home/doorbell", 1, func(string, []byte) error {
		order = append(order, 2)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe(second) error = %v", err)
	}

	if subs, _ := fake.counts(); subs != 1 {
		t.Errorf("broker subscribes = %d, want 1 for a shared filter", subs)
	}

	fake.deliver("home/doorbell", "home/doorbell", []byte("1"))
	if fmt.Sprint(order) != "[1 2]" {
		t.Errorf("handler order = %v, want [1 2]", order)
	}

	if err := c.Unsubscribe(first); err != nil {
		t.Fatalf("Unsubscribe(first) error = %v", err)
	}
	if _, unsubs := fake.counts(); unsubs != 0 {
		t.Errorf("broker unsubscribes = %d, want 0 while a handler remains", unsubs)
	}

	order = nil
	fake.deliver("home/doorbell", "home/doorbell", []byte("1"))
	if fmt.Sprint(order) != "[2]" {
		t.Errorf("handler order after first unsubscribe = %v, want [2]", order)
	}

	if err := c.Unsubscribe(second); err != nil {
		t.Fatalf("Unsubscribe(second) error = %v", err)
	}
	if _, unsubs := fake.counts(); unsubs != 1 {
		t.Errorf("broker unsubscribes = %d, want 1", unsubs)
	}
	if c.HasSubscription("home/doorbell") {
		t.Error("HasSubscription() = true after last handler removed")
	}
}

func TestSubscribe_BrokerError(t *testing.T) {
	c, fake := newTestClient(t)
	fake.subscribeErr["home/doorbell"] = errors.New("not authorised")

	_, err := c.Subscribe(context.Background(), "home/doorbell", 1, noopHandler)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("home/doorbell") {
		t.Error("failed subscription is still tracked")
	}
}

func TestSubscribe_ContextTimeout(t *testing.T) {
	c, fake := newTestClient(t)
	fake.hang["home/doorbell"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Subscribe(ctx, "home/doorbell", 1, noopHandler)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
	if c.HasSubscription("home/doorbell") {
		t.Error("timed-out subscription is still tracked")
	}
	if _, unsubs := fake.counts(); unsubs != 1 {
		t.Errorf("broker unsubscribes = %d, want 1 to clean up the abandoned subscribe", unsubs)
	}
}

func TestSubscribe_IndependentFilters(t *testing.T) {
	c, fake := newTestClient(t)
	fake.hang["home/slow"] = true

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.Subscribe(ctx, "home/slow", 1, noopHandler)
		done <- err
	}()

	// A hung filter must not block a different one.
	fastCtx, fastCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer fastCancel()
	if _, err := c.Subscribe(fastCtx, "home/fast", 1, noopHandler); err != nil {
		t.Errorf("Subscribe(home/fast) error = %v", err)
	}

	if err := <-done; err == nil {
		t.Error("Subscribe(home/slow) succeeded, want timeout")
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.Unsubscribe(nil); err != nil {
		t.Errorf("Unsubscribe(nil) error = %v", err)
	}

	sub, err := c.Subscribe(context.Background(), "home/doorbell", 1, noopHandler)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := c.Unsubscribe(sub); err != nil {
			t.Errorf("Unsubscribe() #%d error = %v", i+1, err)
		}
	}

	if _, unsubs := fake.counts(); unsubs != 1 {
		t.Errorf("broker unsubscribes = %d, want 1", unsubs)
	}
}

func TestUnsubscribe_Disconnected(t *testing.T) {
	c, fake := newTestClient(t)

	called := false
	sub, err := c.Subscribe(context.Background(), "home/doorbell", 1, func(string, []byte) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	cb := fake.callbacks["home/doorbell"]
	fake.Disconnect(0)

	if err := c.Unsubscribe(sub); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}

	// A late delivery after unsubscribe reaches no handler.
	cb(fake, &fakeMessage{topic: "home/doorbell", payload: []byte("1")})
	if called {
		t.Error("handler invoked after Unsubscribe")
	}
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestHandlerPanicRecovered(t *testing.T) {
	c, fake := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	ctx := context.Background()
	if _, err := c.Subscribe(ctx, "home/doorbell", 1, func(string, []byte) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	survived := false
	if _, err := c.Subscribe(ctx, "home/doorbell", 1, func(string, []byte) error {
		survived = true
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.deliver("home/doorbell", "home/doorbell", []byte("1"))

	if !survived {
		t.Error("second handler not invoked after first panicked")
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %d, want 1", len(logger.errors))
	}
}

func TestHandlerReturnsError(t *testing.T) {
	c, fake := newTestClient(t)
	logger := &recordingLogger{}
	c.SetLogger(logger)

	if _, err := c.Subscribe(context.Background(), "home/doorbell", 1, func(string, []byte) error {
		return errors.New("handler failed")
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	fake.deliver("home/doorbell", "home/doorbell", []byte("x"))

	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %d, want 1", len(logger.warns))
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c, _ := newTestClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "doorbell/+", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "doorbell/x", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "doorbell/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublish(t *testing.T) {
	c, fake := newTestClient(t)

	if err := c.PublishString("doorbell/event/front/ring", "{}", 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}
	if err := c.PublishRetained("doorbell/bridge/x/status", []byte("{}")); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	fake.mu.Lock()
	n := len(fake.published)
	fake.mu.Unlock()
	if n != 2 {
		t.Errorf("published = %d, want 2", n)
	}

	fake.Disconnect(0)
	if err := c.Publish("doorbell/x", nil, 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish(disconnected) error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Options Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [ssl://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "doorbell-test" {
		t.Errorf("ClientID = %q, want doorbell-test", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Error("credentials not applied")
	}
	if opts.Order {
		t.Error("Order = true, want unordered delivery")
	}
	if !opts.CleanSession || !opts.AutoReconnect {
		t.Error("CleanSession and AutoReconnect should be enabled")
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, NewTopics("doorbell"), "doorbell-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "doorbell/bridge/doorbell-test/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Error("will should be retained at QoS 1")
	}
}
