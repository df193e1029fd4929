package mqtt

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateSubscribeFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr bool
	}{
		{"plain topic", "home/front/doorbell", false},
		{"single level", "doorbell", false},
		{"leading slash", "/home/doorbell", false},
		{"trailing slash", "home/doorbell/", false},
		{"empty level", "home//doorbell", false},
		{"plus whole level", "home/+/doorbell", false},
		{"plus alone", "+", false},
		{"plus first and last", "+/doorbell/+", false},
		{"hash alone", "#", false},
		{"hash last level", "home/#", false},
		{"plus then hash", "+/#", false},
		{"unicode", "haus/tür/klingel", false},
		{"spaces", "home/front door/bell", false},
		{"empty", "", true},
		{"plus inside level", "home/front+/doorbell", true},
		{"plus prefix level", "home/+front", true},
		{"hash not last", "home/#/doorbell", true},
		{"hash inside level", "home/door#", true},
		{"hash twice", "#/#", true},
		{"null character", "home/\x00/doorbell", true},
		{"control character", "home/\x1f", true},
		{"c1 control character", "home/\u0085", true},
		{"non-character", "home/﷐", true},
		{"non-character fffe", "home/￾", true},
		{"invalid utf-8", "home/\xff", true},
		{"too long", strings.Repeat("a", maxTopicLength+1), true},
		{"at length limit", strings.Repeat("a", maxTopicLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSubscribeFilter(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSubscribeFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("error = %v, want it to wrap ErrInvalidTopic", err)
			}
		})
	}
}

func TestValidateSubscribeFilter_FilterError(t *testing.T) {
	err := ValidateSubscribeFilter("a/b+")

	var fe *FilterError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %T, want *FilterError", err)
	}
	if fe.Filter != "a/b+" {
		t.Errorf("Filter = %q, want %q", fe.Filter, "a/b+")
	}
	if !strings.Contains(fe.Reason, "single-level") {
		t.Errorf("Reason = %q, want mention of single-level wildcard", fe.Reason)
	}
}

func TestValidateTopicName(t *testing.T) {
	tests := []struct {
		topic   string
		wantErr bool
	}{
		{"doorbell/event/front/ring", false},
		{"", true},
		{"doorbell/+/ring", true},
		{"doorbell/#", true},
		{"doorbell/\x00", true},
	}

	for _, tt := range tests {
		err := ValidateTopicName(tt.topic)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopicName(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
		}
	}
}
