// Package telemetry wires OpenTelemetry tracing and Pyroscope profiling.
// Until Init installs a provider every helper is backed by a no-op tracer.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/marmos91/pgstate"

var (
	mu       sync.RWMutex
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	provider *sdktrace.TracerProvider
)

// Init installs a tracer provider exporting over OTLP gRPC. The returned
// function flushes pending spans and must be called at exit. When tracing is
// disabled, Init only resets to the no-op tracer.
func Init(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled {
		install(nil, nil)
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return InitWithExporter(ctx, cfg, sdktrace.WithBatcher(exporter))
}

// InitWithExporter installs a provider using the given span processor
// option, e.g. sdktrace.WithSyncer over an in-memory exporter in tests.
func InitWithExporter(ctx context.Context, cfg Config, processor sdktrace.TracerProviderOption) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	install(tp, tp.Tracer(instrumentationName))

	return func(ctx context.Context) error {
		install(nil, nil)
		return tp.Shutdown(ctx)
	}, nil
}

// install swaps the active provider. nil restores the no-op tracer.
func install(tp *sdktrace.TracerProvider, tr trace.Tracer) {
	if tr == nil {
		tr = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	mu.Lock()
	provider, tracer = tp, tr
	mu.Unlock()
}

// Tracer returns the active tracer.
func Tracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()
	return tracer
}

// IsEnabled reports whether a real provider is installed.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return provider != nil
}

// RecordError records err on the span in ctx and marks the span failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes adds attrs to the span in ctx.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).SetAttributes(attrs...)
}

// TraceID returns the hex trace id of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the hex span id of the span in ctx, or "".
func SpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}
