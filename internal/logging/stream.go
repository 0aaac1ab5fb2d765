// Package logging provides a slog handler that mirrors log records
// into an in-memory ring buffer, so recent service logs can be served
// over the API without shelling out to the host.
package logging

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time      time.Time              `json:"time"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Component string                 `json:"component,omitempty"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

// RingBuffer stores the most recent log entries
type RingBuffer struct {
	entries []Entry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Add adds a log entry to the ring buffer
func (rb *RingBuffer) Add(entry Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}
}

// Recent returns the most recent n entries, oldest first.
func (rb *RingBuffer) Recent(n int) []Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}

	result := make([]Entry, n)
	start := (rb.head - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.entries[(start+i)%rb.size]
	}
	return result
}

// StreamHandler is a slog handler that captures records to a ring
// buffer while also delegating to a regular handler.
type StreamHandler struct {
	buffer   *RingBuffer
	fallback slog.Handler
	level    slog.Level
	attrs    []slog.Attr
}

// NewStreamHandler wraps fallback with ring-buffer capture.
func NewStreamHandler(buffer *RingBuffer, fallback slog.Handler, level slog.Level) *StreamHandler {
	return &StreamHandler{
		buffer:   buffer,
		fallback: fallback,
		level:    level,
	}
}

// NewJSONStreamHandler is a convenience over a JSON fallback handler.
func NewJSONStreamHandler(buffer *RingBuffer, w io.Writer, level slog.Level) *StreamHandler {
	return NewStreamHandler(buffer, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}), level)
}

// Enabled implements slog.Handler
func (h *StreamHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle implements slog.Handler
func (h *StreamHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]interface{})
	var component string

	collect := func(a slog.Attr) {
		if a.Key == "component" {
			component = a.Value.String()
		} else {
			attrs[a.Key] = a.Value.Any()
		}
	}

	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})
	for _, a := range h.attrs {
		collect(a)
	}

	h.buffer.Add(Entry{
		Time:      r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Component: component,
		Attrs:     attrs,
	})

	return h.fallback.Handle(ctx, r)
}

// WithAttrs implements slog.Handler
func (h *StreamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &StreamHandler{
		buffer:   h.buffer,
		fallback: h.fallback.WithAttrs(attrs),
		level:    h.level,
		attrs:    append(h.attrs[:len(h.attrs):len(h.attrs)], attrs...),
	}
}

// WithGroup implements slog.Handler
func (h *StreamHandler) WithGroup(name string) slog.Handler {
	return &StreamHandler{
		buffer:   h.buffer,
		fallback: h.fallback.WithGroup(name),
		level:    h.level,
		attrs:    h.attrs,
	}
}
