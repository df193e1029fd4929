package doorbell

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Payloads that signal a ring. Comparison is exact: no trimming and no
// case folding, so "TRUE", " 1" and "on" do not ring.
const (
	ringPayloadOne  = "1"
	ringPayloadTrue = "true"
)

// IsRing reports whether a decoded payload signals a doorbell press.
// It is pure and safe for concurrent use.
func IsRing(payload string) bool {
	return payload == ringPayloadOne || payload == ringPayloadTrue
}

// decodePayload interprets raw message bytes as UTF-8 text.
//
// Invalid sequences are replaced with U+FFFD and an error wrapping
// ErrDecodeWarning is returned alongside the lossy text. A replaced payload
// can never equal a ring sentinel.
func decodePayload(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	text := strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	return text, fmt.Errorf("%w: %d bytes", ErrDecodeWarning, len(raw))
}
