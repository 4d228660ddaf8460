// Package telemetry wires OpenTelemetry tracing and metrics for the API.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
)

const instrumentationName = "github.com/toonranks/toonranks"

var tracer trace.Tracer

// Propagator returns the W3C trace context and baggage propagator
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Sampler keeps the caller's decision for propagated traces and samples new
// root traces at ratio. Ratios outside 0..1 are clamped.
func Sampler(ratio float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case ratio <= 0:
		root = sdktrace.NeverSample()
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	default:
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

// Resource describes this process to exporters
func Resource(ctx context.Context, cfg *config.TelemetryConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// Init installs the propagator and, when enabled, the tracer and meter
// providers. The propagator is installed even with telemetry disabled so
// trace headers still reach downstream spans and logs.
func Init(cfg *config.TelemetryConfig) (func(), error) {
	otel.SetTextMapPropagator(Propagator())

	log := logging.WithComponent("telemetry")
	if !cfg.Enabled {
		log.Info("Telemetry disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	res, err := Resource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var shutdownFuncs []func(context.Context) error

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(cfg.SampleRatio)),
	}
	if cfg.JaegerURL != "" {
		exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
		if err != nil {
			return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
		log.Info("Jaeger exporter initialized", zap.String("url", cfg.JaegerURL))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	if cfg.PrometheusEnabled {
		exporter, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(exporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		log.Info("Prometheus exporter initialized", zap.Int("port", cfg.PrometheusPort))
	}

	tracer = tp.Tracer(instrumentationName, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	log.Info("Telemetry initialized",
		zap.String("service", cfg.ServiceName),
		zap.String("environment", cfg.Environment),
		zap.Float64("sample_ratio", cfg.SampleRatio),
	)

	return func() { shutdown(shutdownFuncs, log) }, nil
}

func shutdown(funcs []func(context.Context) error, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, fn := range funcs {
		if err := fn(ctx); err != nil {
			log.Error("Error shutting down telemetry", zap.Error(err))
		}
	}
}

// Tracer returns the tracer set up by Init, or one from the global provider
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return tracer
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}
