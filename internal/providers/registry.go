package providers

import (
	"fmt"

	"github.com/rumbo-ai/rumbo/internal/config"
)

// Registry resolves provider names from model profiles to live clients.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds clients for every provider with credentials.
func NewRegistry(cfg config.ProvidersConfig) *Registry {
	r := &Registry{providers: map[string]Provider{}}
	if cfg.OpenAI.APIKey != "" {
		r.providers["openai"] = NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, "gpt-4o-mini")
	}
	if cfg.Anthropic.APIKey != "" {
		r.providers["anthropic"] = NewAnthropicProvider(cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, "claude-sonnet-4-5")
	}
	return r
}

// Register adds or replaces a provider, mainly for tests.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns the provider for a profile's provider name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return p, nil
}
