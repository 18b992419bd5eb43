// Package telemetry installs the OpenTelemetry trace pipeline. When tracing
// is disabled no exporter is created and the global provider stays a no-op.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/seantiz/xbrowse/internal/config"
)

// Providers holds the SDK tracer provider. It is nil when tracing is off.
type Providers struct {
	tp *sdktrace.TracerProvider
}

// Init builds an OTLP/gRPC trace exporter for cfg and registers it as the
// global tracer provider. The exporter connects lazily, so Init does not
// need a running collector.
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) (*Providers, error) {
	log := logger.With("component", "telemetry")
	if !cfg.Enabled {
		log.Debug("tracing disabled")
		return &Providers{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(buildVersion()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("tracing enabled",
		"otlp_endpoint", cfg.OTLPEndpoint,
		"service_name", cfg.ServiceName,
		"sample_rate", cfg.SampleRate,
	)
	return &Providers{tp: tp}, nil
}

// Shutdown flushes pending spans and closes the exporter. It is safe on
// disabled and nil Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}
