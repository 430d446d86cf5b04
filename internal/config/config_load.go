package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// knownTopLevelKeys is the closed set of options the loader accepts.
// Free-form keys were a recurring source of silent misconfiguration, so
// anything unrecognized is an error, not a warning.
var knownTopLevelKeys = map[string]bool{
	"languages": true,
	"memory":    true,
	"models":    true,
	"cache":     true,
	"deadlines": true,
	"limits":    true,
	"agent":     true,
	"places":    true,
	"providers": true,
	"server":    true,
	"database":  true,
	"redis":     true,
	"telemetry": true,
}

// Load reads config from a JSON5 file, overlays env vars, and validates.
// A missing file yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for key := range raw {
		if !knownTopLevelKeys[key] {
			return nil, fmt.Errorf("unknown config option %q", key)
		}
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets
	envStr("RUMBO_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("RUMBO_REDIS_PASSWORD", &c.Redis.Password)
	envStr("RUMBO_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("RUMBO_ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)

	// Collaborators
	envStr("RUMBO_PLACES_API_BASE_URL", &c.Places.BaseURL)
	envStr("RUMBO_REDIS_ADDR", &c.Redis.Addr)

	// Server
	envStr("RUMBO_HOST", &c.Server.Host)
	if v := os.Getenv("RUMBO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	// Telemetry
	envStr("RUMBO_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	if v := os.Getenv("RUMBO_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Budget mode kill switch for cost incidents
	if v := os.Getenv("RUMBO_BUDGET_MODE"); v != "" {
		c.Models.BudgetMode = v == "true" || v == "1"
	}
}
