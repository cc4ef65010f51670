package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// initTracing initializes the tracing provider
func initTracing(config TracingConfig) error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []stdouttrace.Option{}
	if config.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(config.Writer))
	}
	if config.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	// Configure sampling
	var sampler sdktrace.Sampler
	if config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	var spanProcessor sdktrace.TracerProviderOption
	if config.Synchronous {
		spanProcessor = sdktrace.WithSyncer(exporter)
	} else {
		spanProcessor = sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(config.BatchTimeout),
		)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		spanProcessor,
	)

	otel.SetTracerProvider(tp)
	provider = tp
	tracer = tp.Tracer(config.ServiceName)

	return nil
}

// initMetrics sets up the OpenTelemetry instruments. Prometheus remains the
// exported metrics backend; these instruments feed any otel reader the host
// process installs.
func initMetrics(serviceName string) error {
	meter = otel.Meter(serviceName)

	var err error
	treesPrepared, err = meter.Int64Counter("stratus.trees.prepared",
		metric.WithDescription("Execution trees that finished preparation"),
	)
	if err != nil {
		return fmt.Errorf("failed to create trees counter: %w", err)
	}
	return nil
}

// DefaultConfig returns a default observability configuration
func DefaultConfig() Config {
	return Config{
		Tracing: TracingConfig{
			ServiceName:    "stratus",
			ServiceVersion: "0.1.0",
			SamplingRate:   1.0,
			BatchTimeout:   5 * time.Second,
		},
	}
}

// Shutdown flushes and stops the tracer provider installed by Initialize
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	tracer = nil
	initialized = false
	mu.Unlock()

	if tp == nil {
		return nil
	}
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown tracer: %w", err)
	}
	return nil
}
