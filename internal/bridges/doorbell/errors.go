package doorbell

import (
	"errors"
	"fmt"
)

// Domain errors for the doorbell bridge package.
var (
	// ErrInvalidConfig is returned for a doorbell entry whose topic is not a
	// valid MQTT subscribe filter, or when required options are missing.
	ErrInvalidConfig = errors.New("doorbell: invalid configuration")

	// ErrBrokerUnavailable is returned when a subscription could not be
	// opened: not connected, timed out, or refused by the broker.
	ErrBrokerUnavailable = errors.New("doorbell: broker unavailable")

	// ErrDecodeWarning marks a payload that was not valid UTF-8. It is only
	// logged; the message is decoded lossily and still evaluated.
	ErrDecodeWarning = errors.New("doorbell: payload is not valid UTF-8")

	// ErrIdentityMissing marks a doorbell whose topic or name is empty, so no
	// unique identity key can be built. It is only logged.
	ErrIdentityMissing = errors.New("doorbell: unique identity missing")

	// ErrStopped is the cause recorded for a subscription that Stop
	// cancelled while Start was still opening it.
	ErrStopped = errors.New("doorbell: bridge stopped")

	errNotConnected = errors.New("not connected")
)

// ConfigError reports one rejected doorbell entry.
// It matches both ErrInvalidConfig and the underlying cause with errors.Is.
type ConfigError struct {
	// Index is the entry's position in the configured list.
	Index int
	Topic string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("doorbell: entry %d (topic %q): %v", e.Index, e.Topic, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

// SubscribeError reports one subscription that Start could not open.
type SubscribeError struct {
	Topic string
	Name  string
	Err   error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("doorbell: subscribe %q (%s): %v", e.Topic, e.Name, e.Err)
}

func (e *SubscribeError) Unwrap() error {
	return e.Err
}
