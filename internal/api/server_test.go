package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/doorbell-bridge/internal/bridges/doorbell"
	"github.com/nerrad567/doorbell-bridge/internal/events"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/config"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/metrics"
)

// ─── Fakes ─────────────────────────────────────────────────────────

type fakeDoorbells struct {
	infos      []doorbell.Info
	subscribed int
}

func (f *fakeDoorbells) Snapshot() []doorbell.Info { return f.infos }
func (f *fakeDoorbells) SubscribedCount() int      { return f.subscribed }

type fakeJournal struct {
	events   []events.Event
	err      error
	gotLimit int
	gotID    string
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]events.Event, error) {
	f.gotLimit = limit
	return f.events, f.err
}

func (f *fakeJournal) RecentFor(_ context.Context, uniqueID string, limit int) ([]events.Event, error) {
	f.gotLimit = limit
	f.gotID = uniqueID
	return f.events, f.err
}

type fakeLastRing map[string][]byte

func (f fakeLastRing) LastRing(_ context.Context, identity string) ([]byte, error) {
	return f[identity], nil
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func testDeps() Deps {
	return Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger: logging.Discard(),
		Doorbells: &fakeDoorbells{
			infos: []doorbell.Info{
				{Topic: "home/front", Name: "Front", UniqueID: "home/frontFront_event", State: "subscribed"},
				{Topic: "home/back", Name: "Back", UniqueID: "home/backBack_event", State: "unsubscribed"},
			},
			subscribed: 1,
		},
		Health:  map[string]HealthChecker{"mqtt": fakeChecker{}},
		Version: "test",
	}
}

// testServer creates a Server from deps.
func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return resp
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	deps := testDeps()
	deps.Logger = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without logger should fail")
	}

	deps = testDeps()
	deps.Doorbells = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without doorbells should fail")
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	router := testServer(t, testDeps()).buildRouter()

	w := get(t, router, "/api/v1/health")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	resp := decode(t, w)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_Degraded(t *testing.T) {
	deps := testDeps()
	deps.Health["redis"] = fakeChecker{err: errors.New("connection refused")}
	router := testServer(t, deps).buildRouter()

	w := get(t, router, "/api/v1/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want 503", w.Code)
	}

	resp := decode(t, w)
	components, _ := resp["components"].(map[string]any) //nolint:errcheck // checked below
	if components["mqtt"] != "ok" {
		t.Errorf("mqtt = %v, want ok", components["mqtt"])
	}
	if components["redis"] != "connection refused" {
		t.Errorf("redis = %v, want error text", components["redis"])
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	w := get(t, testServer(t, testDeps()).buildRouter(), "/api/v1/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	router := testServer(t, testDeps()).buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestRecovery(t *testing.T) {
	srv := testServer(t, testDeps())
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := get(t, h, "/")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	w := get(t, testServer(t, testDeps()).buildRouter(), "/api/v1/nonexistent")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Doorbell Tests ────────────────────────────────────────────────

func TestListDoorbells(t *testing.T) {
	w := get(t, testServer(t, testDeps()).buildRouter(), "/api/v1/doorbells")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Doorbells  []doorbell.Info `json:"doorbells"`
		Total      int             `json:"total"`
		Subscribed int             `json:"subscribed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Total != 2 || resp.Subscribed != 1 {
		t.Errorf("total/subscribed = %d/%d, want 2/1", resp.Total, resp.Subscribed)
	}
	if resp.Doorbells[0].UniqueID != "home/frontFront_event" {
		t.Errorf("first doorbell = %+v", resp.Doorbells[0])
	}
}

func TestLastRing(t *testing.T) {
	deps := testDeps()
	deps.LastRing = fakeLastRing{"home/frontFront_event": []byte(`{"event_type":"ring"}`)}
	router := testServer(t, deps).buildRouter()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/api/v1/doorbells/last-ring?unique_id=home%2FfrontFront_event", http.StatusOK},
		{"never rung", "/api/v1/doorbells/last-ring?unique_id=home%2FbackBack_event", http.StatusNotFound},
		{"missing id", "/api/v1/doorbells/last-ring", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, router, tt.path)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLastRing_Disabled(t *testing.T) {
	w := get(t, testServer(t, testDeps()).buildRouter(), "/api/v1/doorbells/last-ring?unique_id=x")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// ─── Event Journal Tests ───────────────────────────────────────────

func TestRecentEvents(t *testing.T) {
	journal := &fakeJournal{events: []events.Event{{ID: "e1", Type: events.TypeRing, Doorbell: "Front"}}}
	deps := testDeps()
	deps.Journal = journal
	router := testServer(t, deps).buildRouter()

	w := get(t, router, "/api/v1/events?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if journal.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", journal.gotLimit)
	}
	if resp := decode(t, w); resp["count"] != float64(1) {
		t.Errorf("count = %v, want 1", resp["count"])
	}

	get(t, router, "/api/v1/events?unique_id=abc")
	if journal.gotID != "abc" || journal.gotLimit != 0 {
		t.Errorf("RecentFor called with (%q, %d), want (abc, 0)", journal.gotID, journal.gotLimit)
	}
}

func TestRecentEvents_Errors(t *testing.T) {
	tests := []struct {
		name    string
		journal EventReader
		path    string
		want    int
	}{
		{"disabled", nil, "/api/v1/events", http.StatusServiceUnavailable},
		{"bad limit", &fakeJournal{}, "/api/v1/events?limit=abc", http.StatusBadRequest},
		{"zero limit", &fakeJournal{}, "/api/v1/events?limit=0", http.StatusBadRequest},
		{"store error", &fakeJournal{err: errors.New("disk")}, "/api/v1/events", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			deps.Journal = tt.journal
			w := get(t, testServer(t, deps).buildRouter(), tt.path)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// ─── System & Metrics Tests ────────────────────────────────────────

func TestSystem(t *testing.T) {
	w := get(t, testServer(t, testDeps()).buildRouter(), "/api/v1/system")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Doorbells.Configured != 2 || resp.Doorbells.Subscribed != 1 {
		t.Errorf("doorbells = %+v, want 2 configured / 1 subscribed", resp.Doorbells)
	}
	if resp.Runtime.Goroutines == 0 {
		t.Error("goroutines = 0")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	deps := testDeps()
	deps.Metrics = metrics.New()
	router := testServer(t, deps).buildRouter()

	get(t, router, "/api/v1/doorbells")
	w := get(t, router, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := `doorbell_http_requests_total{method="GET",route="/api/v1/doorbells",status="200"} 1`
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("exposition missing %q", want)
	}
}

func TestMetricsEndpoint_NotRoutedWithoutMetrics(t *testing.T) {
	w := get(t, testServer(t, testDeps()).buildRouter(), "/metrics")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func TestHub_EmitToSubscribed(t *testing.T) {
	hub := NewHub(logging.Discard())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelRing: {}},
	}
	hub.Register(client)

	if err := hub.Emit(context.Background(), events.Event{ID: "e1", Doorbell: "Front"}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != ChannelRing {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, ChannelRing)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(logging.Discard())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{},
	}
	hub.Register(client)

	hub.Broadcast(ChannelRing, map[string]any{"id": "e1"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(logging.Discard())

	client := &WSClient{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]struct{}{}}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client) // second call must not double-close
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

// ─── Lifecycle Tests ───────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	srv := testServer(t, testDeps())

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	addr := srv.Addr()
	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close() //nolint:errcheck // Test cleanup
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}

	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still responding after Close()")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first := testServer(t, testDeps())
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer first.Close() //nolint:errcheck // Test cleanup

	deps := testDeps()
	var port int
	if _, err := fmt.Sscanf(first.Addr(), "127.0.0.1:%d", &port); err != nil {
		t.Fatalf("parse addr %q: %v", first.Addr(), err)
	}
	deps.Config.Port = port

	if err := testServer(t, deps).Start(context.Background()); err == nil {
		t.Error("Start() on a bound port should fail")
	}
}

// ─── WebSocket Tests ───────────────────────────────────────────────

func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v (resp: %v)", err, resp)
	}
	t.Cleanup(func() { ws.Close() }) //nolint:errcheck // Test cleanup
	return ws
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_ReceivesRing(t *testing.T) {
	srv := testServer(t, testDeps())
	ws := dialWS(t, srv)
	waitForClients(t, srv.Hub(), 1)

	ev := events.Event{ID: "e1", Type: events.TypeRing, Doorbell: "Front", UniqueID: "home/frontFront_event"}
	if err := srv.Hub().Emit(context.Background(), ev); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var msg struct {
		Type      string       `json:"type"`
		EventType string       `json:"event_type"`
		Payload   events.Event `json:"payload"`
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != WSTypeEvent || msg.EventType != ChannelRing {
		t.Errorf("message = %s/%s, want event/%s", msg.Type, msg.EventType, ChannelRing)
	}
	if msg.Payload.UniqueID != ev.UniqueID {
		t.Errorf("payload unique_id = %q, want %q", msg.Payload.UniqueID, ev.UniqueID)
	}
}

func TestWebSocket_UnsubscribeAndPing(t *testing.T) {
	srv := testServer(t, testDeps())
	ws := dialWS(t, srv)
	waitForClients(t, srv.Hub(), 1)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "u-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelRing}},
	}); err != nil {
		t.Fatalf("write unsubscribe: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "u-1" {
		t.Errorf("response = %+v, want response u-1", resp)
	}

	// No ring is delivered after unsubscribing; the next frame is the pong.
	srv.Hub().Emit(context.Background(), events.Event{ID: "ignored"}) //nolint:errcheck // Always nil
	if err := ws.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if resp.Type != WSTypePong || resp.ID != "p-1" {
		t.Errorf("response = %+v, want pong p-1", resp)
	}
}

func TestWebSocket_InvalidMessage(t *testing.T) {
	srv := testServer(t, testDeps())
	ws := dialWS(t, srv)

	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != WSTypeError {
		t.Errorf("type = %q, want error", resp.Type)
	}
}
