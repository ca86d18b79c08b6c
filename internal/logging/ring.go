package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Ring is a bounded buffer of formatted log lines. Diagnostic snapshots read
// it to attach recent activity to escalation records.
type Ring struct {
	mu    sync.Mutex
	lines []string
	size  int
	next  int
	full  bool
}

// NewRing creates a ring holding at most size lines.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 64
	}
	return &Ring{
		lines: make([]string, size),
		size:  size,
	}
}

// Add appends a line, evicting the oldest when full.
func (r *Ring) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines[r.next] = line
	r.next = (r.next + 1) % r.size
	if r.next == 0 {
		r.full = true
	}
}

// Lines returns the buffered lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]string, r.next)
		copy(out, r.lines[:r.next])
		return out
	}
	out := make([]string, 0, r.size)
	out = append(out, r.lines[r.next:]...)
	out = append(out, r.lines[:r.next]...)
	return out
}

// RingHandler tees records into a Ring before delegating to the inner handler.
type RingHandler struct {
	inner slog.Handler
	ring  *Ring
}

// NewRingHandler wraps a handler with ring capture.
func NewRingHandler(inner slog.Handler, ring *Ring) *RingHandler {
	return &RingHandler{inner: inner, ring: ring}
}

func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RingHandler) Handle(ctx context.Context, rec slog.Record) error {
	var b strings.Builder
	b.WriteString(rec.Time.Format("15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(rec.Level.String())
	b.WriteByte(' ')
	b.WriteString(rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	})
	h.ring.Add(b.String())
	return h.inner.Handle(ctx, rec)
}

func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &RingHandler{inner: h.inner.WithAttrs(attrs), ring: h.ring}
}

func (h *RingHandler) WithGroup(name string) slog.Handler {
	return &RingHandler{inner: h.inner.WithGroup(name), ring: h.ring}
}
