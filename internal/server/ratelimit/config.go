package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        `yaml:"path"`   // Endpoint path pattern (supports prefix matching)
	Method string        `yaml:"method"` // HTTP method (GET, POST, etc.)
	Limit  int           `yaml:"limit"`  // Maximum requests per window
	Window time.Duration `yaml:"window"` // Time window
	Burst  int           `yaml:"burst"`  // Burst capacity (defaults to Limit if 0)
}

// Validate checks an endpoint override.
func (e EndpointConfig) Validate() error {
	if !strings.HasPrefix(e.Path, "/") {
		return fmt.Errorf("rate limit path must start with /: %q", e.Path)
	}
	if e.Method == "" {
		return fmt.Errorf("rate limit for %s has no method", e.Path)
	}
	if e.Limit > 0 && e.Window <= 0 {
		return fmt.Errorf("rate limit for %s %s needs a positive window", e.Method, e.Path)
	}
	return nil
}

type envConfig struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED,default=true"`
	DefaultLimit    int           `env:"RATE_LIMIT_DEFAULT_LIMIT,default=1000"`
	DefaultWindow   time.Duration `env:"RATE_LIMIT_DEFAULT_WINDOW,default=1m"`
	CleanupInterval time.Duration `env:"RATE_LIMIT_CLEANUP_INTERVAL,default=5m"`
	Whitelist       string        `env:"RATE_LIMIT_WHITELIST"`
	Blacklist       string        `env:"RATE_LIMIT_BLACKLIST"`
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() (*Config, error) {
	var env envConfig
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode rate limit config: %w", err)
	}
	if !env.Enabled {
		return &Config{Enabled: false}, nil
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    env.DefaultLimit,
		DefaultWindow:   env.DefaultWindow,
		CleanupInterval: env.CleanupInterval,
		Whitelist:       parseIPList(env.Whitelist),
		Blacklist:       parseIPList(env.Blacklist),
		EndpointConfigs: DefaultEndpointConfigs(),
	}, nil
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Tier 1: Credential endpoints (strictest limits)
		{Path: "/auth/login", Method: "POST", Limit: 10, Window: time.Minute, Burst: 5},
		{Path: "/auth/register", Method: "POST", Limit: 5, Window: time.Minute, Burst: 2},

		// Tier 2: Money movement
		{Path: "/jobs/", Method: "POST", Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/payments/", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},

		// Tier 3: Other writes
		{Path: "/jobs", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/jobs/", Method: "PATCH", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/jobs/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/proposals/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/proposals/", Method: "PATCH", Limit: 100, Window: time.Minute, Burst: 10},

		// Reads use the default limit; /health and /metrics are unlimited.
	}
}

// WithOverrides returns a copy of c whose endpoint list has overrides applied.
// An override replaces the entry with the same path and method, or is added
// ahead of the defaults.
func (c *Config) WithOverrides(overrides []EndpointConfig) *Config {
	out := *c
	merged := make([]EndpointConfig, 0, len(c.EndpointConfigs)+len(overrides))
	replaced := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		replaced[o.Method+" "+o.Path] = true
		merged = append(merged, o)
	}
	for _, e := range c.EndpointConfigs {
		if !replaced[e.Method+" "+e.Path] {
			merged = append(merged, e)
		}
	}
	out.EndpointConfigs = merged
	return &out
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	if list == "" {
		return result
	}

	ips := strings.Split(list, ",")
	for _, ip := range ips {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}

	return result
}
