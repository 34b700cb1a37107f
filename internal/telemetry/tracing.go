package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "payment-ledger"

// InitTracer installs a Jaeger-backed TracerProvider as the global provider.
// An empty endpoint leaves the default no-op provider in place and returns a nil provider.
func InitTracer(serviceName, jaegerEndpoint string, log zerolog.Logger) (*sdktrace.TracerProvider, error) {
	if jaegerEndpoint == "" {
		log.Info().Msg("tracing disabled: no jaeger endpoint configured")
		return nil, nil
	}

	exporter, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating jaeger exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	log.Info().
		Str("service", serviceName).
		Str("endpoint", jaegerEndpoint).
		Msg("tracer initialized")
	return tp, nil
}

// Tracer returns the ledger tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, spanName)
}
