// Package observability wires the OpenTelemetry trace pipeline. Spans are
// exported to a writer as JSON lines; production deployments point the
// writer at a collector sidecar's log tail or a file.
package observability

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope for all spans in this process.
const TracerName = "loomchat"

// Config controls trace exporting.
type Config struct {
	// Enabled turns span export on. When false Setup returns a noop
	// tracer and a nil-safe shutdown.
	Enabled bool
	// ServiceVersion is stamped on the resource attributes.
	ServiceVersion string
	// Writer receives the exported spans. Defaults to io.Discard.
	Writer io.Writer
}

// Setup builds the tracer provider and registers it globally.
// The returned shutdown flushes pending spans and must be called on exit.
func Setup(ctx context.Context, cfg Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.Enabled {
		tracer := noop.NewTracerProvider().Tracer(TracerName)
		return tracer, func(context.Context) error { return nil }, nil
	}

	w := cfg.Writer
	if w == nil {
		w = io.Discard
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(TracerName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Tracer(TracerName), provider.Shutdown, nil
}
