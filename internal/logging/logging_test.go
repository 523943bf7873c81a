package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseTopics(t *testing.T) {
	got := ParseTopics(" backlight, ,input ", false)
	if !got["backlight"] || !got["input"] {
		t.Fatalf("ParseTopics() = %v, want backlight and input", got)
	}
	if len(got) != 2 {
		t.Fatalf("len(ParseTopics()) = %d, want 2", len(got))
	}

	all := ParseTopics("", true)
	if !all["all"] {
		t.Fatalf("ParseTopics(verbose) = %v, want all", all)
	}
}

func TestTopicHandler_Filters(t *testing.T) {
	tests := []struct {
		name      string
		topics    map[string]bool
		wantIn    []string
		wantNotIn []string
	}{
		{
			name:      "no topics only untagged",
			topics:    nil,
			wantIn:    []string{"untagged"},
			wantNotIn: []string{"from-input", "from-device", "record-level"},
		},
		{
			name:      "input enabled",
			topics:    map[string]bool{TopicInput: true},
			wantIn:    []string{"untagged", "from-input"},
			wantNotIn: []string{"from-device", "record-level"},
		},
		{
			name:      "all",
			topics:    map[string]bool{"all": true},
			wantIn: []string{"untagged", "from-input", "from-device", "record-level"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewHandler(&buf, tt.topics))

			logger.Info("untagged")
			logger.With("topic", TopicInput).Info("from-input")
			logger.With("topic", TopicDevice).WithGroup("g").Info("from-device")
			logger.Info("record-level", "topic", TopicWake)

			out := buf.String()
			for _, s := range tt.wantIn {
				if !strings.Contains(out, s) {
					t.Fatalf("output missing %q:\n%s", s, out)
				}
			}
			for _, s := range tt.wantNotIn {
				if strings.Contains(out, s) {
					t.Fatalf("output unexpectedly contains %q:\n%s", s, out)
				}
			}
		})
	}
}
