package tracing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceID(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	tid := TraceID(id)
	if tid == (trace.TraceID{}) {
		t.Error("expected non-zero trace ID")
	}
	if tid.String() != "550e8400e29b41d4a716446655440000" {
		t.Errorf("trace id = %s", tid)
	}
}

func TestSpanID(t *testing.T) {
	id := uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")
	sid := SpanID(id)
	for i := 0; i < 8; i++ {
		if sid[i] != id[8+i] {
			t.Errorf("byte %d: expected %02x, got %02x", i, id[8+i], sid[i])
		}
	}
	other := SpanID(uuid.MustParse("550e8400-e29b-41d4-b827-557766550001"))
	if sid == other {
		t.Error("different UUIDs should produce different span IDs")
	}
}

func TestWithRun(t *testing.T) {
	id := uuid.New()
	sc := trace.SpanContextFromContext(WithRun(context.Background(), id))
	if !sc.IsValid() || !sc.IsRemote() {
		t.Fatalf("span context = %+v", sc)
	}
	if sc.TraceID() != TraceID(id) {
		t.Errorf("trace id = %s, want %s", sc.TraceID(), TraceID(id))
	}
}
