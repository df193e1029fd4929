package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "doorbell"

// Topics builds the topics this bridge publishes to. Doorbell source topics
// come from configuration verbatim and never pass through here.
//
//	topics := mqtt.NewTopics("doorbell")
//	topics.Event("front_door", "ring")
//	// Returns: "doorbell/event/front_door/ring"
type Topics struct {
	prefix string
}

// NewTopics returns a builder rooted at prefix. Trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic this builder produces.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Status returns the retained online/offline status topic for a client.
//
// Example: doorbell/bridge/doorbell-bridge/status
func (t Topics) Status(clientID string) string {
	return fmt.Sprintf("%s/bridge/%s/status", t.Prefix(), Slug(clientID))
}

// Event returns the topic a republished event is sent on.
//
// Example: doorbell/event/front_door/ring
func (t Topics) Event(source, eventType string) string {
	return fmt.Sprintf("%s/event/%s/%s", t.Prefix(), Slug(source), Slug(eventType))
}

// AllEvents returns a pattern matching every republished event.
//
// Pattern: doorbell/event/+/+
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+/+", t.Prefix())
}

// Slug reduces s to a single topic level: lower-case ASCII letters, digits,
// '-' and '_'. Any other run of characters becomes one '_'.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}

	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
