// Package logging provides the daemon's slog handler, which filters records
// by a "topic" attribute.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

const (
	TopicBacklight = "backlight"
	TopicDevice    = "device"
	TopicInput     = "input"
	TopicWatcher   = "watcher"
	TopicHistory   = "history"
	TopicWake      = "wake"
)

// Topics lists every topic accepted by ParseTopics, in display order.
var Topics = []string{TopicBacklight, TopicDevice, TopicInput, TopicWatcher, TopicHistory, TopicWake}

// topicHandler wraps an slog.Handler and filters records by a "topic" attribute.
// Records without a topic attribute always pass through (startup messages, errors).
// Records with a topic only pass if that topic is enabled.
type topicHandler struct {
	inner  slog.Handler
	topics map[string]bool
	topic  string // set when WithAttrs includes a "topic" key
}

// NewHandler returns a text handler writing to w that only emits topic-tagged
// records for the enabled topics. The special topic "all" enables everything.
func NewHandler(w io.Writer, topics map[string]bool) slog.Handler {
	if topics == nil {
		topics = map[string]bool{}
	}
	return &topicHandler{
		inner:  slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics: topics,
	}
}

// ParseTopics turns a comma-separated topic list into the set used by
// NewHandler. Blank entries are ignored.
func ParseTopics(list string, verbose bool) map[string]bool {
	topics := make(map[string]bool)
	if verbose {
		topics["all"] = true
	}
	for _, t := range strings.Split(list, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics[t] = true
		}
	}
	return topics
}

func (h *topicHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.inner.Enabled(context.Background(), level)
}

func (h *topicHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.topics["all"] {
		return h.inner.Handle(ctx, r)
	}
	topic := h.topic
	if topic == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "topic" {
				topic = a.Value.String()
				return false
			}
			return true
		})
	}
	if topic != "" && !h.topics[topic] {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *topicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	topic := h.topic
	for _, a := range attrs {
		if a.Key == "topic" {
			topic = a.Value.String()
		}
	}
	return &topicHandler{inner: h.inner.WithAttrs(attrs), topics: h.topics, topic: topic}
}

func (h *topicHandler) WithGroup(name string) slog.Handler {
	return &topicHandler{inner: h.inner.WithGroup(name), topics: h.topics, topic: h.topic}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
