package observability

import (
	"testing"

	"github.com/smallbiznis/waitlist/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "development",
		Telemetry:   config.TelemetryConfig{OtlpEndpoint: "collector:4317", SamplingRatio: 3},
	})

	assert.Equal(t, "waitlist", cfg.ServiceName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "grpc", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4317", cfg.OtelExporterEndpoint)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestTelemetryEnvOverrides(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg := LoadConfig(config.Load())
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestDebugOffInProduction(t *testing.T) {
	cfg := Config{Environment: "production", LogLevel: "info"}
	assert.False(t, cfg.Debug())
	cfg.LogLevel = "debug"
	assert.True(t, cfg.Debug())
}
