package observability

import (
	"strings"

	"github.com/smallbiznis/waitlist/internal/config"
)

const defaultServiceName = "waitlist"

// Config is the slice of application config the logging, tracing and
// metrics providers read.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	telemetry := cfg.Telemetry

	logLevel := telemetry.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := telemetry.LogFormat
	if logFormat == "" {
		logFormat = "json"
	}
	protocol := telemetry.OtlpProtocol
	if protocol == "" {
		protocol = "grpc"
	}
	ratio := telemetry.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             logLevel,
		LogFormat:            logFormat,
		OtelEnabled:          telemetry.OtelEnabled,
		OtelExporterEndpoint: telemetry.OtlpEndpoint,
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on verbose request logs for debug level or any
// non-production environment name.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}
