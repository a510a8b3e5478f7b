package observability

import (
	"context"
	"testing"

	"github.com/signalsfoundry/mto-simulator/internal/logging"
)

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("MTO_TRACING_ENABLED", "TRUE")
	t.Setenv("MTO_TRACING_EXPORTER", "OTLP")
	t.Setenv("MTO_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("MTO_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("TracingConfigFromEnv() = %+v", cfg)
	}
	if cfg.ServiceName != "mto-simulator" {
		t.Fatalf("ServiceName = %q, want default", cfg.ServiceName)
	}
}

func TestTracingConfigIgnoresBadRatio(t *testing.T) {
	t.Setenv("MTO_TRACING_SAMPLE_RATIO", "1.5")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("SampleRatio = %v, want 1", got)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), DefaultTracingConfig(), logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestInitTracingUnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "zipkin"
	if _, err := InitTracing(context.Background(), cfg, logging.Noop()); err == nil {
		t.Fatalf("InitTracing() with unknown exporter succeeded")
	}
}
