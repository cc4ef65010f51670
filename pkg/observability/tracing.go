// Package observability provides OpenTelemetry tracing for Stratus. The
// execution tree opens one span per preparation pass and one child span per
// operator hook, so a slow loader or a failing post-action shows up with the
// operator name and phase attached.
package observability

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/stratus"

var (
	mu            sync.Mutex
	initialized   bool
	provider      *sdktrace.TracerProvider
	tracer        trace.Tracer
	meter         metric.Meter
	treesPrepared metric.Int64Counter
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
	BatchTimeout   time.Duration
	// Writer receives exported spans; nil means stdout
	Writer io.Writer
	// PrettyPrint indents exported spans
	PrettyPrint bool
	// Synchronous exports each span as it ends instead of batching
	Synchronous bool
}

// Config contains all observability configuration
type Config struct {
	Tracing TracingConfig
}

// Initialize sets up the tracer provider and instruments. Calling it again
// after Shutdown installs a fresh provider.
func Initialize(config Config) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}
	if err := initTracing(config.Tracing); err != nil {
		return err
	}
	if err := initMetrics(config.Tracing.ServiceName); err != nil {
		return err
	}
	initialized = true
	return nil
}

// Tracer returns the configured tracer, or the global (no-op by default)
// tracer when Initialize has not been called
func Tracer() trace.Tracer {
	mu.Lock()
	defer mu.Unlock()
	if tracer != nil {
		return tracer
	}
	return otel.Tracer(instrumentationName)
}

// Span wraps a trace span and the time it started
type Span struct {
	span      trace.Span
	startTime time.Time
}

// StartSpan starts a span named operationName
func StartSpan(ctx context.Context, operationName string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, operationName, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span, startTime: time.Now()}
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.span.SetAttributes(attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End records err (if any) on the span and ends it
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.SetAttributes(attribute.Int64("duration_us", time.Since(s.startTime).Microseconds()))
	s.span.End()
}

// TraceOperatorPhase runs fn inside a span describing one operator's
// preparation hook.
func TraceOperatorPhase(ctx context.Context, operator, phase string, fn func(context.Context) error) error {
	ctx, span := StartSpan(ctx, "operator."+phase,
		attribute.String("stratus.operator", operator),
		attribute.String("stratus.phase", phase),
	)
	err := fn(ctx)
	span.End(err)
	return err
}

// RecordTreePrepared increments the prepared-trees instrument
func RecordTreePrepared(ctx context.Context, treeID string) {
	mu.Lock()
	c := treesPrepared
	mu.Unlock()
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("stratus.tree_id", treeID)))
}
