// Package tracing ties run ids to OpenTelemetry traces. Spans go to the
// global tracer provider, which is a no-op unless an exporter from
// otelexport has been installed.
package tracing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Name is the instrumentation scope used by tabpilot spans.
const Name = "github.com/nextlevelbuilder/tabpilot"

// Tracer returns the tabpilot tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(Name)
}

// TraceID converts a run id to a trace id. A run's spans share this trace
// id so a history entry can be looked up in the tracing backend directly.
func TraceID(runID uuid.UUID) trace.TraceID {
	return trace.TraceID(runID)
}

// SpanID derives a span id from the last 8 bytes of a uuid.
func SpanID(id uuid.UUID) trace.SpanID {
	var sid trace.SpanID
	copy(sid[:], id[8:16])
	return sid
}

// WithRun returns a context whose remote parent carries the run's trace id.
// Spans started from it join that trace.
func WithRun(ctx context.Context, runID uuid.UUID) context.Context {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    TraceID(runID),
		SpanID:     SpanID(runID),
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}
