package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration for the Rumbo engine.
type Config struct {
	Languages Languages       `json:"languages"`
	Memory    MemoryConfig    `json:"memory"`
	Models    ModelsConfig    `json:"models"`
	Cache     CacheConfig     `json:"cache"`
	Deadlines DeadlineConfig  `json:"deadlines"`
	Limits    LimitsConfig    `json:"limits"`
	Agent     AgentConfig     `json:"agent"`
	Places    PlacesConfig    `json:"places"`
	Providers ProvidersConfig `json:"providers,omitempty"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Redis     RedisConfig     `json:"redis,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// Languages configures which language codes the validator accepts.
type Languages struct {
	Supported []string `json:"supported"`
	Default   string   `json:"default"`
}

// Supports reports whether lang is in the supported set.
func (l Languages) Supports(lang string) bool {
	for _, s := range l.Supported {
		if strings.EqualFold(s, lang) {
			return true
		}
	}
	return false
}

// MemoryConfig sizes the conversation memory window.
type MemoryConfig struct {
	MaxShortTermTurns    int     `json:"max_short_term_turns"`
	MaxLongTermTurns     int     `json:"max_long_term_turns"`
	MaxTokens            int     `json:"max_tokens"`
	CompressionThreshold float64 `json:"compression_threshold"`
}

// ModelProfile describes one routable model.
type ModelProfile struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float64 `json:"temperature"`
	InputCostPer1K   float64 `json:"input_cost_per_1k"`
	OutputCostPer1K  float64 `json:"output_cost_per_1k"`
	MaxContextTokens int     `json:"max_context_tokens,omitempty"`
}

// Router tier labels. The router only ever looks models up by these
// labels; provider names never appear in routing logic.
const (
	TierSmallFast = "small_fast"
	TierMid       = "mid_tier"
	TierTop       = "top_tier"
	TierChitchat  = "chitchat"
)

// ModelsConfig maps tier labels to model profiles plus classifier settings.
type ModelsConfig struct {
	Profiles       map[string]ModelProfile `json:"profiles"`
	Classifier     string                  `json:"classifier"`      // tier label used by the intent classifier
	BudgetMode     bool                    `json:"budget_mode"`     // force the cheapest tier for everything
	PreferredModel string                  `json:"preferred_model"` // optional per-deployment override
}

// Profile returns the profile for a tier label.
func (m ModelsConfig) Profile(tier string) (ModelProfile, bool) {
	p, ok := m.Profiles[tier]
	return p, ok
}

// CacheConfig holds per-namespace TTLs in seconds.
type CacheConfig struct {
	MemoryTTLSeconds int `json:"memory_ttl_seconds"`
	IntentTTLSeconds int `json:"intent_ttl_seconds"`
	PlacesTTLSeconds int `json:"places_ttl_seconds"`
}

func (c CacheConfig) MemoryTTL() time.Duration {
	return time.Duration(c.MemoryTTLSeconds) * time.Second
}
func (c CacheConfig) IntentTTL() time.Duration {
	return time.Duration(c.IntentTTLSeconds) * time.Second
}
func (c CacheConfig) PlacesTTL() time.Duration {
	return time.Duration(c.PlacesTTLSeconds) * time.Second
}

// DeadlineConfig holds request, model and tool timeouts in milliseconds.
type DeadlineConfig struct {
	PerRequestMS int `json:"per_request_deadline_ms"`
	ModelCallMS  int `json:"model_call_timeout_ms"`
	ToolCallMS   int `json:"tool_call_timeout_ms"`
}

func (d DeadlineConfig) PerRequest() time.Duration {
	return time.Duration(d.PerRequestMS) * time.Millisecond
}
func (d DeadlineConfig) ModelCall() time.Duration {
	return time.Duration(d.ModelCallMS) * time.Millisecond
}
func (d DeadlineConfig) ToolCall() time.Duration {
	return time.Duration(d.ToolCallMS) * time.Millisecond
}

// LimitsConfig bounds in-process concurrency before the orchestrator
// fails fast with OVERLOADED.
type LimitsConfig struct {
	MaxModelCalls int `json:"max_model_calls"`
	MaxToolCalls  int `json:"max_tool_calls"`
	QueueLength   int `json:"queue_length"`
}

// AgentConfig bounds the reason-act loop.
type AgentConfig struct {
	MaxReasoningIterations int    `json:"max_reasoning_iterations"`
	SystemPrompt           string `json:"system_prompt,omitempty"`
}

// PlacesConfig addresses the Places collaborator service.
type PlacesConfig struct {
	BaseURL   string `json:"base_url"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (p PlacesConfig) Timeout() time.Duration { return time.Duration(p.TimeoutMS) * time.Millisecond }

// ProviderCredentials addresses one model provider. API keys come from
// env only (RUMBO_OPENAI_API_KEY, RUMBO_ANTHROPIC_API_KEY).
type ProviderCredentials struct {
	APIKey  string `json:"-"`
	BaseURL string `json:"base_url,omitempty"`
}

// ProvidersConfig holds credentials for all configured model providers.
type ProvidersConfig struct {
	OpenAI    ProviderCredentials `json:"openai,omitempty"`
	Anthropic ProviderCredentials `json:"anthropic,omitempty"`
}

// ServerConfig configures the HTTP entry point.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

// DatabaseConfig configures Postgres.
// PostgresDSN is NEVER read from the config file (secret), only from
// env RUMBO_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// RedisConfig configures the volatile cache.
// Password comes from env RUMBO_REDIS_PASSWORD only.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty"`
	DB       int    `json:"db,omitempty"`
	Password string `json:"-"`
}

// TelemetryConfig configures the OTLP trace exporter.
type TelemetryConfig struct {
	Endpoint string `json:"endpoint,omitempty"` // host:port of an OTLP/HTTP collector; empty disables export
	Insecure bool   `json:"insecure,omitempty"`
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Languages: Languages{
			Supported: []string{"es", "en", "ca", "gl"},
			Default:   "es",
		},
		Memory: MemoryConfig{
			MaxShortTermTurns:    10,
			MaxLongTermTurns:     50,
			MaxTokens:            4000,
			CompressionThreshold: 0.8,
		},
		Models: ModelsConfig{
			Classifier: TierSmallFast,
			Profiles: map[string]ModelProfile{
				TierSmallFast: {
					Provider:        "openai",
					Model:           "gpt-4o-mini",
					MaxTokens:       2048,
					Temperature:     0.3,
					InputCostPer1K:  0.00015,
					OutputCostPer1K: 0.0006,
				},
				TierMid: {
					Provider:        "openai",
					Model:           "gpt-4-turbo",
					MaxTokens:       4096,
					Temperature:     0.5,
					InputCostPer1K:  0.01,
					OutputCostPer1K: 0.03,
				},
				TierTop: {
					Provider:        "openai",
					Model:           "gpt-4",
					MaxTokens:       4096,
					Temperature:     0.5,
					InputCostPer1K:  0.03,
					OutputCostPer1K: 0.06,
				},
				TierChitchat: {
					Provider:        "openai",
					Model:           "gpt-3.5-turbo",
					MaxTokens:       1024,
					Temperature:     0.8,
					InputCostPer1K:  0.0005,
					OutputCostPer1K: 0.0015,
				},
			},
		},
		Cache: CacheConfig{
			MemoryTTLSeconds: 300,
			IntentTTLSeconds: 3600,
			PlacesTTLSeconds: 600,
		},
		Deadlines: DeadlineConfig{
			PerRequestMS: 30_000,
			ModelCallMS:  15_000,
			ToolCallMS:   10_000,
		},
		Limits: LimitsConfig{
			MaxModelCalls: 32,
			MaxToolCalls:  64,
			QueueLength:   128,
		},
		Agent: AgentConfig{
			MaxReasoningIterations: 6,
		},
		Places: PlacesConfig{
			BaseURL:   "http://localhost:8080",
			TimeoutMS: 10_000,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         18690,
			RateLimitRPM: 60,
		},
	}
}

// Validate checks cross-field consistency after loading.
func (c *Config) Validate() error {
	if len(c.Languages.Supported) == 0 {
		return fmt.Errorf("languages.supported must not be empty")
	}
	if !c.Languages.Supports(c.Languages.Default) {
		return fmt.Errorf("languages.default %q is not in the supported set", c.Languages.Default)
	}
	for _, tier := range []string{TierSmallFast, TierMid, TierTop, TierChitchat} {
		p, ok := c.Models.Profiles[tier]
		if !ok {
			return fmt.Errorf("models.profiles is missing tier %q", tier)
		}
		if p.Model == "" || p.Provider == "" {
			return fmt.Errorf("models.profiles[%q] needs both provider and model", tier)
		}
	}
	if _, ok := c.Models.Profiles[c.Models.Classifier]; !ok {
		return fmt.Errorf("models.classifier %q is not a configured tier", c.Models.Classifier)
	}
	if c.Memory.CompressionThreshold <= 0 || c.Memory.CompressionThreshold >= 1 {
		return fmt.Errorf("memory.compression_threshold must be in (0,1), got %v", c.Memory.CompressionThreshold)
	}
	if c.Memory.MaxShortTermTurns <= 0 || c.Memory.MaxLongTermTurns < c.Memory.MaxShortTermTurns {
		return fmt.Errorf("memory turn limits are inconsistent: short=%d long=%d",
			c.Memory.MaxShortTermTurns, c.Memory.MaxLongTermTurns)
	}
	if c.Agent.MaxReasoningIterations <= 0 {
		return fmt.Errorf("agent.max_reasoning_iterations must be positive")
	}
	return nil
}
