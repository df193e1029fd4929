package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/doorbell-bridge/internal/bridges/doorbell"
	"github.com/nerrad567/doorbell-bridge/internal/events"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/config"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DoorbellLister reports the configured doorbells. Satisfied by *doorbell.Bridge.
type DoorbellLister interface {
	Snapshot() []doorbell.Info
	SubscribedCount() int
}

// EventReader reads the ring journal. Satisfied by *events.Journal.
type EventReader interface {
	Recent(ctx context.Context, limit int) ([]events.Event, error)
	RecentFor(ctx context.Context, uniqueID string, limit int) ([]events.Event, error)
}

// LastRingReader reads the last ring stored for a doorbell. Satisfied by *redis.Client.
type LastRingReader interface {
	LastRing(ctx context.Context, identity string) ([]byte, error)
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Doorbells DoorbellLister

	// Journal is optional; /events returns 503 without it.
	Journal EventReader

	// LastRing is optional; /doorbells/last-ring returns 503 without it.
	LastRing LastRingReader

	// Health lists the components reported by /health, by name.
	Health map[string]HealthChecker

	// Metrics is optional; /metrics is not routed without it.
	Metrics *metrics.Metrics

	// Hub streams ring events to WebSocket clients. Created if nil.
	Hub *Hub

	Version string
}

// Server is the HTTP status API for the doorbell bridge.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	doorbells DoorbellLister
	journal   EventReader
	lastRing  LastRingReader
	health    map[string]HealthChecker
	metrics   *metrics.Metrics
	hub       *Hub
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Doorbells == nil {
		return nil, fmt.Errorf("doorbell lister is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		doorbells: deps.Doorbells,
		journal:   deps.Journal,
		lastRing:  deps.LastRing,
		health:    deps.Health,
		metrics:   deps.Metrics,
		hub:       hub,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, which is also an events.Sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in a background goroutine.
// The bind happens synchronously so a port in use is reported here.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		s.server = nil
		return fmt.Errorf("binding api listener: %w", err)
	}
	s.listener = ln

	s.logger.Info("API server starting", "address", ln.Addr().String())

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelShutdown()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
