package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

type Options struct {
	ServiceName string
	Environment string
	Exporter    string
	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string
	Insecure bool
}

// Setup installs the global tracer provider and W3C propagators.
// The returned shutdown flushes pending spans.
func Setup(ctx context.Context, opts Options, logger observability.Logger) (trace.TracerProvider, func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	exporterName := strings.ToLower(strings.TrimSpace(opts.Exporter))
	if exporterName == "" || exporterName == ExporterNone {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("deployment.environment", opts.Environment),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	exporter, err := newExporter(ctx, exporterName, opts, logger)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

func newExporter(ctx context.Context, name string, opts Options, logger observability.Logger) (sdktrace.SpanExporter, error) {
	switch name {
	case ExporterStdout:
		return stdouttrace.New()
	case ExporterOTLP:
		var httpOpts []otlptracehttp.Option
		if opts.Endpoint != "" {
			httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(opts.Endpoint))
		}
		if opts.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, httpOpts...)
		if err == nil {
			return exporter, nil
		}
		if logger != nil {
			logger.Warn("otlp_exporter_unavailable",
				observability.F("fallback", ExporterStdout),
				observability.F("error", err.Error()),
			)
		}
		return stdouttrace.New()
	default:
		return nil, fmt.Errorf("telemetry: unknown exporter %q", name)
	}
}
