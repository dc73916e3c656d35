// Package tracing records per-request span trees carried in a context.
// A finished tree is written to slog at debug level, one record per span.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one timed stage of a request.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration

	mu       sync.Mutex
	children []*Span
	attrs    map[string]any
	ended    bool
}

// StartSpan creates a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a span under the one in ctx. Without a parent the
// child is a detached root and is never logged by Log.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		attrs:     make(map[string]any),
	}
}

// End fixes the span's duration. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.StartTime)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Attr returns a previously set attribute.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Children returns a snapshot of the direct children.
func (s *Span) Children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Span, len(s.children))
	copy(out, s.children)
	return out
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(contextKey{}).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to logger, or slog.Default when nil.
func (s *Span) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	s.logRecursive(logger, 0)
}

func (s *Span) logRecursive(logger *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.attrs {
		attrs = append(attrs, k, v)
	}
	children := s.children
	s.mu.Unlock()

	logger.Debug("span", attrs...)
	for _, child := range children {
		child.logRecursive(logger, depth+1)
	}
}
