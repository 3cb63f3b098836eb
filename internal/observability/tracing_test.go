package observability

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := InitTracing(context.Background(), TracingConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatalf("expected global tracer provider to be untouched")
	}
}

func TestInitTracingStdoutExporter(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
	})

	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "span")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}
