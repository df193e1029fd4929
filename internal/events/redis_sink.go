package events

import (
	"context"
	"errors"
	"fmt"
)

// RedisStore is the subset of *redis.Client used by RedisSink.
type RedisStore interface {
	Publish(ctx context.Context, payload []byte) (int64, error)
	SetLastRing(ctx context.Context, identity string, payload []byte) error
}

// RedisSink publishes each event on the pub/sub channel and stores it as
// the doorbell's last ring.
type RedisSink struct {
	store RedisStore
}

// NewRedisSink creates a RedisSink.
func NewRedisSink(store RedisStore) *RedisSink {
	return &RedisSink{store: store}
}

// Emit publishes ev, then records it as the last ring keyed by its unique
// ID, or its doorbell name when the unique ID is empty. Both steps are
// attempted even if the first fails.
func (s *RedisSink) Emit(ctx context.Context, ev Event) error {
	payload, err := ev.JSON()
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	identity := ev.UniqueID
	if identity == "" {
		identity = ev.Doorbell
	}

	var errs []error
	if _, err := s.store.Publish(ctx, payload); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.SetLastRing(ctx, identity, payload); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
