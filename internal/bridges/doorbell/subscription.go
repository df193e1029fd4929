package doorbell

import (
	"context"
	"sync"
)

// State is the lifecycle position of one Subscription.
type State int

const (
	// StateUnsubscribed holds no broker handle. Initial and final state.
	StateUnsubscribed State = iota

	// StateSubscribing means a broker subscribe is in flight.
	StateSubscribing

	// StateSubscribed holds exactly one live broker handle.
	StateSubscribed
)

// String returns the lower-case state name used in logs and the API.
func (s State) String() string {
	switch s {
	case StateUnsubscribed:
		return "unsubscribed"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// identitySuffix is appended to topic+name to form the identity key.
// Existing deployments key their history on this exact shape.
const identitySuffix = "_event"

// identityKey builds the unique identity for a doorbell. It returns
// ErrIdentityMissing, and an empty key, when topic or name is empty.
func identityKey(topic, name string) (string, error) {
	if topic == "" || name == "" {
		return "", ErrIdentityMissing
	}
	return topic + name + identitySuffix, nil
}

// Subscription binds one doorbell entry to at most one broker handle.
type Subscription struct {
	topic string
	name  string
	key   string

	// mu guards state, handle, gen and cancel.
	mu     sync.Mutex
	state  State
	handle Handle
	cancel context.CancelFunc

	// gen is bumped on every subscribe attempt and every stop. A message
	// handler bound to an older generation is stale and does nothing.
	gen uint64

	// handleMu serialises message handling for this doorbell.
	handleMu sync.Mutex
}

func newSubscription(topic, name, key string) *Subscription {
	return &Subscription{
		topic: topic,
		name:  name,
		key:   key,
		state: StateUnsubscribed,
	}
}

// Topic returns the configured subscribe filter.
func (s *Subscription) Topic() string { return s.topic }

// Name returns the display name.
func (s *Subscription) Name() string { return s.name }

// UniqueID returns the identity key, or "" if it could not be built.
func (s *Subscription) UniqueID() string { return s.key }

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// live reports whether a handler bound to gen may still act.
func (s *Subscription) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && s.state != StateUnsubscribed
}

// Info is a point-in-time view of a Subscription.
type Info struct {
	Topic    string `json:"topic"`
	Name     string `json:"name"`
	UniqueID string `json:"unique_id"`
	State    string `json:"state"`
}

func (s *Subscription) info() Info {
	return Info{
		Topic:    s.topic,
		Name:     s.name,
		UniqueID: s.key,
		State:    s.State().String(),
	}
}
