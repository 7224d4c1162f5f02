package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(config.TelemetryConfig{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInitTracer_ExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := InitTracer(config.TelemetryConfig{Enabled: true, ServiceName: "bundle-gateway-test"},
		&buf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("InitTracer() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "pipeline.ProcessBundle")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "pipeline.ProcessBundle") || !strings.Contains(out, "bundle-gateway-test") {
		t.Errorf("exported spans missing name or service: %s", out)
	}
}
