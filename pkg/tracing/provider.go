package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

// ProviderConfig selects and configures the span exporter.
type ProviderConfig struct {
	ServiceName string
	Environment string
	// Exporter is "otlp", "console", or "none"
	Exporter string
	OTLP     exporters.OTLPConfig
}

// InitProvider wires up a tracer provider, registers it globally, and points
// the package tracer at it. The returned shutdown func flushes pending spans.
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	if cfg.Exporter == "none" || cfg.Exporter == "" {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "otlp":
		exporter, err = exporters.NewOTLPExporter(ctx, cfg.OTLP)
	case "console":
		exporter, err = exporters.NewConsoleExporter()
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s (use 'otlp', 'console', or 'none')", cfg.Exporter)
	}
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
