package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// GatewayConfig carries the payment gateway credentials. Empty secrets are
// allowed at load time; the components that need them refuse to operate.
type GatewayConfig struct {
	Provider       string `env:"PROVIDER" envDefault:"razorpay"`
	BaseURL        string `env:"BASE_URL" envDefault:"https://api.razorpay.com"`
	KeyID          string `env:"KEY_ID"`
	KeySecret      string `env:"KEY_SECRET"`
	WebhookSecret  string `env:"WEBHOOK_SECRET"`
	TimeoutSeconds int    `env:"TIMEOUT_SECONDS" envDefault:"12"`
}

type gatewayEnv struct {
	Gateway GatewayConfig `envPrefix:"GATEWAY_"`
}

func LoadGatewayConfig() (GatewayConfig, error) {
	var raw gatewayEnv
	if err := env.Parse(&raw); err != nil {
		return GatewayConfig{}, fmt.Errorf("parse gateway config: %w", err)
	}
	cfg := raw.Gateway
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	cfg.KeySecret = strings.TrimSpace(cfg.KeySecret)
	cfg.WebhookSecret = strings.TrimSpace(cfg.WebhookSecret)
	return cfg, nil
}

func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(g.TimeoutSeconds) * time.Second
}
