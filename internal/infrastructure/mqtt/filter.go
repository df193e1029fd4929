package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxTopicLength is the MQTT limit on the UTF-8 encoded length of a topic.
const maxTopicLength = 65535

// FilterError describes why a topic or topic filter was rejected.
// It unwraps to ErrInvalidTopic.
type FilterError struct {
	Filter string
	Reason string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("mqtt: invalid topic %q: %s", e.Filter, e.Reason)
}

func (e *FilterError) Unwrap() error {
	return ErrInvalidTopic
}

// ValidateSubscribeFilter checks a subscription filter against the MQTT
// topic-filter grammar.
//
// A filter is valid when it:
//   - is non-empty and at most 65535 bytes of valid UTF-8
//   - contains no NUL, control characters or Unicode non-characters
//   - uses "+" only as an entire level ("a/+/c", not "a/b+/c")
//   - uses "#" only as the entire final level ("a/#" or "#")
func ValidateSubscribeFilter(filter string) error {
	if err := validateTopicText(filter); err != nil {
		return err
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		if strings.Contains(level, "+") && level != "+" {
			return &FilterError{Filter: filter, Reason: "single-level wildcard must occupy an entire level"}
		}
		if strings.Contains(level, "#") {
			if level != "#" {
				return &FilterError{Filter: filter, Reason: "multi-level wildcard must occupy an entire level"}
			}
			if i != len(levels)-1 {
				return &FilterError{Filter: filter, Reason: "multi-level wildcard must be the last level"}
			}
		}
	}

	return nil
}

// ValidateTopicName checks a topic used for publishing. Publish topics
// follow the same text rules as filters but must not contain wildcards.
func ValidateTopicName(topic string) error {
	if err := validateTopicText(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return &FilterError{Filter: topic, Reason: "wildcards are not allowed in a topic name"}
	}
	return nil
}

// validateTopicText applies the character rules shared by names and filters.
func validateTopicText(topic string) error {
	if topic == "" {
		return &FilterError{Filter: topic, Reason: "must not be empty"}
	}
	if len(topic) > maxTopicLength {
		return &FilterError{Filter: topic[:32] + "...", Reason: "longer than 65535 bytes"}
	}
	if !utf8.ValidString(topic) {
		return &FilterError{Filter: topic, Reason: "not valid UTF-8"}
	}

	for _, r := range topic {
		switch {
		case r == 0:
			return &FilterError{Filter: topic, Reason: "must not contain a null character"}
		case r <= 0x1f, r >= 0x7f && r <= 0x9f:
			return &FilterError{Filter: topic, Reason: "must not contain control characters"}
		case r >= 0xfdd0 && r <= 0xfdef, r&0xfffe == 0xfffe:
			return &FilterError{Filter: topic, Reason: "must not contain non-characters"}
		}
	}

	return nil
}
