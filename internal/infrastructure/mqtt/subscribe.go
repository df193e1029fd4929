package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// route is the set of handlers registered on one subscribe filter.
type route struct {
	qos      byte
	handlers map[uint64]MessageHandler
}

// filterLocks hands out one mutex per filter. Entries are dropped when
// no caller holds or waits on them.
type filterLocks struct {
	mu    sync.Mutex
	locks map[string]*filterLock
}

type filterLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for filter and returns its release func.
func (l *filterLocks) lock(filter string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*filterLock)
	}
	fl, ok := l.locks[filter]
	if !ok {
		fl = &filterLock{}
		l.locks[filter] = fl
	}
	fl.refs++
	l.mu.Unlock()

	fl.mu.Lock()
	return func() {
		fl.mu.Unlock()
		l.mu.Lock()
		fl.refs--
		if fl.refs == 0 {
			delete(l.locks, filter)
		}
		l.mu.Unlock()
	}
}

// Subscription is the handle returned by Subscribe. It identifies exactly one
// registered handler; pass it to Unsubscribe to remove that handler.
type Subscription struct {
	id     uint64
	filter string
	qos    byte
}

// Filter returns the topic filter this subscription was opened on.
func (s *Subscription) Filter() string {
	return s.filter
}

// QoS returns the QoS level requested for this subscription.
func (s *Subscription) QoS() byte {
	return s.qos
}

// Subscribe registers a handler for messages matching the topic filter.
//
// Filters can include MQTT wildcards:
//   - + (single-level): "home/+/doorbell" matches any room
//   - # (multi-level): "home/#" matches everything below home
//
// Several handlers may be registered on the same filter. The broker
// subscription is opened by the first and closed by the last Unsubscribe.
// Every call returns a distinct handle, so double registration of the
// same handler is the caller's responsibility to avoid.
//
// The broker round-trip is bounded by ctx; without a deadline a default
// timeout applies. Subscriptions are restored after a reconnect.
//
// Parameters:
//   - ctx: Cancels or bounds the broker round-trip
//   - filter: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - *Subscription: Handle for Unsubscribe
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) (*Subscription, error) {
	if err := ValidateSubscribeFilter(filter); err != nil {
		return nil, err
	}
	if qos > maxQoS {
		return nil, ErrInvalidQoS
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	defer c.ops.lock(filter)()

	// Register the handler before the broker round-trip so retained
	// messages delivered straight after SUBACK are not dropped.
	c.subMu.Lock()
	c.nextID++
	sub := &Subscription{id: c.nextID, filter: filter, qos: qos}
	if r, exists := c.routes[filter]; exists {
		r.handlers[sub.id] = handler
		c.subMu.Unlock()
		return sub, nil
	}
	c.routes[filter] = &route{
		qos:      qos,
		handlers: map[uint64]MessageHandler{sub.id: handler},
	}
	c.subMu.Unlock()

	timeout := defaultSubscribeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := c.client.Subscribe(filter, qos, c.dispatch(filter))
	err := waitToken(ctx, token, timeout)
	if err == nil {
		err = subackError(token, filter)
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.routes, filter)
		c.subMu.Unlock()

		// The broker may still complete a subscribe we gave up on.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
			c.client.Unsubscribe(filter)
		}
		return nil, fmt.Errorf("%w: %q: %w", ErrSubscribeFailed, filter, err)
	}

	return sub, nil
}

// subackError reports a broker refusal carried in the SUBACK return codes.
func subackError(token pahomqtt.Token, filter string) error {
	st, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return nil
	}
	if code, found := st.Result()[filter]; found && code == subackFailure {
		return ErrSubscribeRejected
	}
	return nil
}

// Unsubscribe removes the handler identified by sub.
//
// It is idempotent: a nil handle or one that was already removed is a no-op.
// The broker subscription is closed when the last handler on the filter
// goes. The handler is detached locally even if the broker call fails, so
// it is never invoked again after Unsubscribe returns.
//
// Parameters:
//   - sub: The handle returned by Subscribe
//
// Returns:
//   - error: nil on success, or wrapped error if the broker call failed
func (c *Client) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}

	defer c.ops.lock(sub.filter)()

	c.subMu.Lock()
	r, exists := c.routes[sub.filter]
	if !exists {
		c.subMu.Unlock()
		return nil
	}
	if _, registered := r.handlers[sub.id]; !registered {
		c.subMu.Unlock()
		return nil
	}
	delete(r.handlers, sub.id)
	if len(r.handlers) > 0 {
		c.subMu.Unlock()
		return nil
	}
	delete(c.routes, sub.filter)
	c.subMu.Unlock()

	if !c.IsConnected() {
		// Clean session: the broker drops the subscription with the connection.
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, ErrNotConnected)
	}

	token := c.client.Unsubscribe(sub.filter)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// dispatch returns the paho callback for a filter. It fans each message out
// to the handlers registered at delivery time, in registration order.
func (c *Client) dispatch(filter string) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		for _, handler := range c.handlersFor(filter) {
			c.invoke(handler, msg.Topic(), msg.Payload())
		}
	}
}

func (c *Client) handlersFor(filter string) []MessageHandler {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	r, exists := c.routes[filter]
	if !exists {
		return nil
	}

	ids := make([]uint64, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	handlers := make([]MessageHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, r.handlers[id])
	}
	return handlers
}

// SubscriptionCount returns the number of filters subscribed at the broker.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.routes)
}

// HasSubscription checks if any handler is registered on the given filter.
//
// Note: This checks only the exact filter string, not pattern matching.
func (c *Client) HasSubscription(filter string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.routes[filter]
	return exists
}
