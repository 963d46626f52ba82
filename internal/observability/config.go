package observability

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/smallbiznis/printdesk/internal/config"
)

// Config is the telemetry view of the service configuration. Standard OTEL_*
// variables override the values from config.Config.
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

type telemetryEnv struct {
	Environment    string  `env:"DEPLOYMENT_ENV"`
	Version        string  `env:"SERVICE_VERSION"`
	LogLevel       string  `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string  `env:"LOG_FORMAT" envDefault:"json"`
	Enabled        bool    `env:"OTEL_ENABLED" envDefault:"true"`
	Endpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Protocol       string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	TracesProtocol string  `env:"OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"`
	SamplingRatio  float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`
}

func LoadConfig(cfg config.Config) (Config, error) {
	var raw telemetryEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse telemetry config: %w", err)
	}

	protocol := raw.Protocol
	if strings.TrimSpace(raw.TracesProtocol) != "" {
		protocol = raw.TracesProtocol
	}
	ratio := raw.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}

	return Config{
		ServiceName:          firstNonEmpty(cfg.AppName, "printdesk"),
		Environment:          firstNonEmpty(raw.Environment, cfg.Environment),
		Version:              firstNonEmpty(raw.Version, cfg.AppVersion),
		LogLevel:             strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		LogFormat:            strings.ToLower(strings.TrimSpace(raw.LogFormat)),
		OtelEnabled:          raw.Enabled,
		OtelExporterEndpoint: firstNonEmpty(raw.Endpoint, cfg.OTLPEndpoint),
		OtelExporterProtocol: strings.ToLower(strings.TrimSpace(protocol)),
		OtelSamplingRatio:    ratio,
	}, nil
}

// Debug turns on development logging for debug level or non-production
// style environments.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
