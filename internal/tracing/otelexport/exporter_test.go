package otelexport

import (
	"context"
	"testing"
)

func TestNew_EmptyEndpoint(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestExporter_Shutdown_NilExporter(t *testing.T) {
	var exp *Exporter
	if err := exp.Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServiceName(t *testing.T) {
	if got := serviceName(Config{}); got != DefaultServiceName {
		t.Errorf("serviceName = %q, want %q", got, DefaultServiceName)
	}
	if got := serviceName(Config{ServiceName: "ci-runner"}); got != "ci-runner" {
		t.Errorf("serviceName = %q", got)
	}
}
