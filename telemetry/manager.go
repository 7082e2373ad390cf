package telemetry

import (
	"context"
	"sync"
)

var (
	globalTracer Tracer = Noop()
	tracerMutex  sync.RWMutex
)

// Init sets the global tracer. Optional: without a call, everything uses
// the Noop tracer at zero cost.
func Init(tracer Tracer) {
	tracerMutex.Lock()
	defer tracerMutex.Unlock()
	globalTracer = tracer
}

// Get returns the current global tracer.
func Get() Tracer {
	tracerMutex.RLock()
	defer tracerMutex.RUnlock()
	return globalTracer
}

// StartSpan is a convenience wrapper around Get().StartSpan.
func StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	return Get().StartSpan(ctx, name, opts...)
}

// Shutdown flushes and releases the global tracer.
func Shutdown(ctx context.Context) error {
	return Get().Shutdown(ctx)
}

// IsEnabled reports whether the global tracer is recording.
func IsEnabled() bool {
	return Get().IsEnabled()
}

// BuildAttributes builds an attribute map from alternating key/value pairs.
func BuildAttributes(pairs ...string) map[string]any {
	if len(pairs)%2 != 0 {
		panic("BuildAttributes: pairs must be even number of arguments")
	}

	result := make(map[string]any)
	for i := 0; i < len(pairs); i += 2 {
		result[pairs[i]] = pairs[i+1]
	}
	return result
}
