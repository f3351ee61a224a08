// Package telemetry wires distributed tracing spans around each poll's HTTP
// round trip, grounded on the teacher's pkg/telemetry.NewAutoOTEL /
// pkg/telemetry/otel.go: an env-gated OTLP/gRPC exporter when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, a stdout exporter for local
// inspection (test/simple_tracing_test.go's stdouttrace.New), and a no-op
// TracerProvider otherwise so tracing never blocks a deployment that
// doesn't run a collector.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Shutdown flushes and releases whatever exporter InitTracing configured.
type Shutdown func(context.Context) error

// InitTracing sets the global TracerProvider for serviceName, selecting an
// exporter the same way the teacher's setupTraceProvider does:
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT set: batch-export spans over OTLP/gRPC to
//     that collector.
//   - OTEL_TRACES_CONSOLE=true: pretty-print spans to stdout, for local runs
//     with no collector.
//   - neither: an SDK TracerProvider with no exporter, which drops spans
//     but still lets downstream code call trace.SpanFromContext safely.
//
// The returned Shutdown must be called during graceful shutdown to flush
// any buffered spans.
func InitTracing(ctx context.Context, serviceName string) (Shutdown, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	var opts []sdktrace.TracerProviderOption
	opts = append(opts, sdktrace.WithResource(res))

	switch {
	case os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "":
		endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		exporter, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter for %s: %w", endpoint, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case os.Getenv("OTEL_TRACES_CONSOLE") == "true":
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	// tp.Shutdown flushes and shuts down every registered span processor,
	// which in turn shuts down the exporter it batches for — no separate
	// exporter.Shutdown call needed here.
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
