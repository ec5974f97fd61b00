// Package config loads the marketplace service configuration from the
// environment and an optional YAML policy file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/robfig/cron/v3"

	"github.com/jonathan/freelance-market/internal/gateway"
)

// Config is the process configuration. Every field is read from the
// environment; a .env file in the working directory is loaded first by the CLI.
type Config struct {
	AppEnv      string `env:"APP_ENV,default=development"`
	Port        int    `env:"PORT,default=8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Auth
	JWTSecret          string `env:"JWT_SECRET"`
	JWTExpirationHours int    `env:"JWT_EXPIRATION_HOURS,default=24"`
	BcryptCost         int    `env:"BCRYPT_COST,default=12"`
	PasswordPepper     string `env:"PASSWORD_PEPPER"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`

	// Payment gateway
	GatewayMode      string `env:"PAYMENT_GATEWAY_MODE,default=http"`
	GatewayURL       string `env:"PAYMENT_GATEWAY_URL"`
	GatewayKeyID     string `env:"PAYMENT_GATEWAY_KEY_ID"`
	GatewayKeySecret string `env:"PAYMENT_GATEWAY_KEY_SECRET"`
	Currency         string `env:"PAYMENT_CURRENCY,default=INR"`

	// Notifications
	RedisURL            string `env:"REDIS_URL"`
	DeliveryConcurrency int    `env:"DELIVERY_CONCURRENCY,default=8"`

	// ReconcileSchedule is a standard five-field cron expression. Empty
	// disables scheduled reconciliation in serve.
	ReconcileSchedule string `env:"RECONCILE_SCHEDULE"`
}

// Load decodes the configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsProduction reports whether APP_ENV names the production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Validate checks that the configuration has valid values.
// Note: DATABASE_URL and JWT_SECRET are checked by the commands that need them.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("config error: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.DeliveryConcurrency < 1 {
		return fmt.Errorf("config error: DELIVERY_CONCURRENCY must be at least 1")
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("config error: PAYMENT_CURRENCY must be a three-letter code, got %q", c.Currency)
	}
	if c.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			return fmt.Errorf("config error: invalid RECONCILE_SCHEDULE: %w", err)
		}
	}
	return nil
}

// Gateway returns the payment gateway settings.
func (c *Config) Gateway() gateway.Config {
	return gateway.Config{
		Mode:      c.GatewayMode,
		AppEnv:    c.AppEnv,
		BaseURL:   c.GatewayURL,
		KeyID:     c.GatewayKeyID,
		KeySecret: c.GatewayKeySecret,
	}
}
