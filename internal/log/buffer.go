package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

// RingBuffer keeps the most recent log lines.
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	head  int // next write position
	full  bool
}

// NewRingBuffer creates a ring buffer holding capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &RingBuffer{lines: make([]string, capacity)}
}

// Add appends a line, evicting the oldest once full.
func (rb *RingBuffer) Add(line string) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.lines[rb.head] = line
	rb.head = (rb.head + 1) % len(rb.lines)
	if rb.head == 0 {
		rb.full = true
	}
}

// Lines returns the last n lines, oldest first. n <= 0 returns every line.
func (rb *RingBuffer) Lines(n int) []string {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	total := rb.head
	start := 0
	if rb.full {
		total = len(rb.lines)
		start = rb.head
	}
	if n <= 0 || n > total {
		n = total
	}

	out := make([]string, n)
	skip := total - n
	for i := range out {
		out[i] = rb.lines[(start+skip+i)%len(rb.lines)]
	}
	return out
}

// BufferHandler copies every record at or above level into a RingBuffer as a text
// line and forwards it to the wrapped handler.
type BufferHandler struct {
	wrapped slog.Handler
	buffer  *RingBuffer
	text    slog.Handler
	out     *bytes.Buffer
	mu      *sync.Mutex
	level   slog.Level
}

// NewBufferHandler wraps h.
func NewBufferHandler(h slog.Handler, rb *RingBuffer, level slog.Level) *BufferHandler {
	out := &bytes.Buffer{}
	return &BufferHandler{
		wrapped: h,
		buffer:  rb,
		text:    slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}),
		out:     out,
		mu:      &sync.Mutex{},
		level:   level,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *BufferHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level || h.wrapped.Enabled(ctx, level)
}

// Handle records r in the buffer and forwards it.
func (h *BufferHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.level {
		h.mu.Lock()
		h.out.Reset()
		if err := h.text.Handle(ctx, r); err == nil {
			h.buffer.Add(strings.TrimSuffix(h.out.String(), "\n"))
		}
		h.mu.Unlock()
	}
	if h.wrapped.Enabled(ctx, r.Level) {
		return h.wrapped.Handle(ctx, r)
	}
	return nil
}

// WithAttrs returns a new handler with the given attributes.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.wrapped = h.wrapped.WithAttrs(attrs)
	c.text = h.text.WithAttrs(attrs)
	return &c
}

// WithGroup returns a new handler with the given group.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.wrapped = h.wrapped.WithGroup(name)
	c.text = h.text.WithGroup(name)
	return &c
}
