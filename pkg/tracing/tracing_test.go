package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ServiceName != "docsearch" {
		t.Fatalf("expected service name 'docsearch', got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInit_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := Init(ctx, &Config{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInit_NilConfig(t *testing.T) {
	tp, err := Init(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil provider")
	}
}

func TestStartAndRecordError(t *testing.T) {
	_, span := Start(context.Background(), "ingest", attribute.Int("ingest.files", 2))
	if span == nil {
		t.Fatal("expected non-nil span")
	}
	// Should not panic
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()
}
