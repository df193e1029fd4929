package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/doorbell-bridge/internal/infrastructure/config"
)

const (
	defaultPingTimeout = 5 * time.Second

	// lastRingPrefix namespaces the per-doorbell last-ring keys.
	lastRingPrefix = "doorbell:last_ring:"
)

// Client publishes ring events on a pub/sub channel and keeps the last ring
// of each doorbell under its own key.
type Client struct {
	rdb     *goredis.Client
	channel string
	ttl     time.Duration

	mu     sync.RWMutex
	closed bool
}

// Connect creates the client and verifies the server with a PING.
//
// Parameters:
//   - ctx: Bounds the PING
//   - cfg: Redis section of config.yaml
//   - lastRingTTL: Lifetime of each last-ring key (0 keeps keys forever)
//
// Returns:
//   - *Client: Connected client
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.RedisConfig, lastRingTTL time.Duration) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &Client{
		rdb:     rdb,
		channel: cfg.Channel,
		ttl:     lastRingTTL,
	}, nil
}

// LastRingKey returns the key holding the last ring for identity.
func LastRingKey(identity string) string {
	return lastRingPrefix + identity
}

// Channel returns the pub/sub channel ring events are published on.
func (c *Client) Channel() string {
	return c.channel
}

// Publish sends payload on the configured channel and returns the number of
// subscribers that received it.
func (c *Client) Publish(ctx context.Context, payload []byte) (int64, error) {
	if !c.isOpen() {
		return 0, ErrNotConnected
	}
	n, err := c.rdb.Publish(ctx, c.channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: publishing to %s: %w", c.channel, err)
	}
	return n, nil
}

// SetLastRing stores payload as the last ring for identity.
func (c *Client) SetLastRing(ctx context.Context, identity string, payload []byte) error {
	if !c.isOpen() {
		return ErrNotConnected
	}
	if err := c.rdb.Set(ctx, LastRingKey(identity), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis: setting last ring: %w", err)
	}
	return nil
}

// LastRing returns the stored last ring for identity, or nil if none exists.
func (c *Client) LastRing(ctx context.Context, identity string) ([]byte, error) {
	if !c.isOpen() {
		return nil, ErrNotConnected
	}
	b, err := c.rdb.Get(ctx, LastRingKey(identity)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: getting last ring: %w", err)
	}
	return b, nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.isOpen() {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.rdb.Ping(checkCtx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}

func (c *Client) isOpen() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed
}
