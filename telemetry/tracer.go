package telemetry

import (
	"context"
	"maps"
)

// Tracer abstracts the observability backend. CMC components never
// depend on a concrete backend, only this interface, so the core stays
// usable with tracing off (see Noop).
type Tracer interface {
	// StartSpan begins a new span, returning a derived context carrying it.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)

	// Shutdown flushes and releases any backend resources.
	Shutdown(ctx context.Context) error

	// IsEnabled reports whether this tracer actually records spans.
	IsEnabled() bool
}

// Span represents one traced interval.
type Span interface {
	SetAttributes(attrs ...Attribute)
	SetStatus(status Status, description string)
	RecordError(err error)
	End()
}

// SpanOption configures a span at creation time.
type SpanOption func(*SpanConfig)

type SpanConfig struct {
	Attributes map[string]any
}

// Attribute is a single span attribute.
type Attribute struct {
	Key   string
	Value any
}

// Status is a simplified span status.
type Status struct {
	Code int
}

var (
	StatusOK    = Status{Code: 1}
	StatusError = Status{Code: 2}
)

// WithAttributes attaches a batch of attributes at span-start time.
func WithAttributes(attrs map[string]any) SpanOption {
	return func(cfg *SpanConfig) {
		if cfg.Attributes == nil {
			cfg.Attributes = make(map[string]any)
		}
		maps.Copy(cfg.Attributes, attrs)
	}
}
