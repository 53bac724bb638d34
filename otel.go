package cttso_pieriandx_gateway

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/grpc"
)

// InitTracerProvider wires the global tracer to an OTLP gRPC collector and
// returns the provider shutdown hook.
func InitTracerProvider(ctx context.Context, hostName string, port int, serviceName, env string, logger *slog.Logger) (func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			// the service name used to display traces in backends
			semconv.ServiceNameKey.String(serviceName),
			semconv.DeploymentEnvironmentKey.String(env),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("Failed to build the tracer resource: %v", err)
	}

	endpoint := fmt.Sprintf("%s:%d", hostName, port)
	logger.Info("Sending traces to gRPC endpoint", "endpoint", endpoint)
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithBlock()),
	)
	if err != nil {
		return nil, fmt.Errorf("Failed to create the OTLP trace exporter: %v", err)
	}

	// batch span processor to aggregate spans before export
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tracerProvider)

	// set global propagator to tracecontext (the default is no-op)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func() {
		logger.Info("Shutting down the tracer provider")
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.Error("Failed to shut down the tracer provider", "error", err)
		}
	}, nil
}
