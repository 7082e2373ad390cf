package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// otelTracer backs Tracer with a real OpenTelemetry OTLP/HTTP exporter.
// Endpoint and headers are read by the otlptracehttp client from the
// standard OTEL_EXPORTER_OTLP_* environment variables; CMC itself reads
// no environment variables.
type otelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	initOnce sync.Once
	initErr  error
}

type otelSpan struct {
	span trace.Span
}

// NewOTel constructs an OTLP/HTTP-backed Tracer for the named service.
// Call Shutdown on the returned Tracer to flush pending spans.
func NewOTel(ctx context.Context, serviceName string) (Tracer, error) {
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	return &otelTracer{
		provider: tp,
		tracer:   tp.Tracer(serviceName),
	}, nil
}

func (t *otelTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span) {
	cfg := &SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var attrs []attribute.KeyValue
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", v)))
	}

	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &otelSpan{span: span}
}

func (t *otelTracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

func (t *otelTracer) IsEnabled() bool { return true }

func (s *otelSpan) SetAttributes(attrs ...Attribute) {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		kvs = append(kvs, attribute.String(a.Key, fmt.Sprintf("%v", a.Value)))
	}
	s.span.SetAttributes(kvs...)
}

func (s *otelSpan) SetStatus(status Status, description string) {
	if status.Code == StatusError.Code {
		s.span.SetAttributes(attribute.String("error", description))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func (s *otelSpan) End() {
	s.span.End()
}
