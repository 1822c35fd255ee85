// Package tracing installs the OpenTelemetry tracer provider. Components
// always obtain tracers through otel.Tracer; with tracing disabled those
// resolve to the global no-op provider.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// ShutdownFunc flushes and stops the exporter.
type ShutdownFunc func(context.Context) error

// Options configures the exporter.
type Options struct {
	Enabled bool
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string
	Service  string
	Version  string
}

// Init installs a batching OTLP/HTTP tracer provider when enabled.
func Init(ctx context.Context, opts Options, logger *zap.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.Enabled {
		logger.Debug("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}
	if opts.Endpoint == "" {
		opts.Endpoint = "localhost:4318"
	}
	if opts.Service == "" {
		opts.Service = "sage"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	tp := newProvider(sdktrace.WithBatcher(exporter), opts)
	otel.SetTracerProvider(tp)
	logger.Info("tracing enabled", zap.String("endpoint", opts.Endpoint))

	return tp.Shutdown, nil
}

func newProvider(exporter sdktrace.TracerProviderOption, opts Options) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		exporter,
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", opts.Service),
			attribute.String("service.version", opts.Version),
		)),
	)
}
