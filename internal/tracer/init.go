package tracer

import (
	"context"
	"fmt"

	"studykit-be/internal/config"
	"studykit-be/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init installs the global tracer provider for serviceName. With tracing
// disabled the returned Shutdown does nothing and the global no-op provider
// stays in place, so spans started by the pipeline cost nothing.
func Init(cfg config.TracingConfig, serviceName, environment string, log logger.ILogger) (Shutdown, error) {
	if !cfg.Enabled {
		log.Debug("TRACER", "Tracing disabled", map[string]interface{}{"service": serviceName})
		return noop, nil
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return noop, fmt.Errorf("otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio(cfg.SampleRatio)))),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(environment),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info("TRACER", "Tracing enabled", map[string]interface{}{
		"service":  serviceName,
		"endpoint": cfg.Endpoint,
		"ratio":    ratio(cfg.SampleRatio),
	})
	return tp.Shutdown, nil
}

func ratio(r float64) float64 {
	switch {
	case r <= 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}
