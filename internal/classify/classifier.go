// Package classify decides what the user wants: an intent label with
// confidence and complexity, produced by a small fast model and cached
// by input hash.
package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/providers"
	"github.com/rumbo-ai/rumbo/internal/store"
)

// Intent labels.
const (
	IntentSearch    = "SEARCH"
	IntentRecommend = "RECOMMEND"
	IntentPlan      = "PLAN"
	IntentChitchat  = "CHITCHAT"
)

// Complexity labels.
const (
	ComplexityLow    = "low"
	ComplexityMedium = "medium"
	ComplexityHigh   = "high"
)

// IntentDecision is the typed classification result.
type IntentDecision struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Complexity string  `json:"complexity"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// fallbackDecision is returned when classification cannot run. The
// pipeline degrades to chitchat instead of failing.
func fallbackDecision() IntentDecision {
	return IntentDecision{Intent: IntentChitchat, Confidence: 0, Complexity: ComplexityLow}
}

const classifierPrompt = `Clasifica la intención de la consulta de un usuario de un asistente de lugares y planes.

Responde SOLO con un objeto JSON con esta forma exacta:
{"intent": "SEARCH"|"RECOMMEND"|"PLAN"|"CHITCHAT", "confidence": 0.0-1.0, "complexity": "low"|"medium"|"high", "reasoning": "una frase"}

Criterios:
- SEARCH: buscar lugares concretos ("bares en Vigo").
- RECOMMEND: pedir sugerencias con criterios ("algo romántico para cenar").
- PLAN: construir un itinerario de varias paradas o con restricciones de tiempo o grupo.
- CHITCHAT: saludos, charla, todo lo demás.
- complexity: low para consultas de un solo lugar o charla; medium para recomendaciones con filtros; high para planes multi-parada, restricciones temporales o coordinación de grupo.`

// Classifier runs the intent classification with a cache in front.
type Classifier struct {
	registry *providers.Registry
	models   config.ModelsConfig
	cache    store.Cache
	ttl      time.Duration
	logger   *slog.Logger
}

func NewClassifier(registry *providers.Registry, models config.ModelsConfig, cache store.Cache, ttl time.Duration, logger *slog.Logger) *Classifier {
	return &Classifier{registry: registry, models: models, cache: cache, ttl: ttl, logger: logger}
}

// CacheKey hashes (normalized query, language, summary) into the intent
// cache namespace. The summary enters through its own hash so long
// summaries do not bloat the key.
func CacheKey(query, language, summary string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	summaryHash := sha256.Sum256([]byte(summary))

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(language)))
	h.Write([]byte{0})
	h.Write(summaryHash[:8])
	return "agent:intent:" + hex.EncodeToString(h.Sum(nil))[:32]
}

// Classify returns an IntentDecision for the query. Failures are soft:
// the fallback decision is returned together with the error so the
// caller can record it without aborting the request.
func (c *Classifier) Classify(ctx context.Context, query, language, summary string) (IntentDecision, error) {
	key := CacheKey(query, language, summary)

	if c.cache != nil {
		if raw, err := c.cache.Get(ctx, key); err == nil {
			var d IntentDecision
			if err := json.Unmarshal([]byte(raw), &d); err == nil {
				return d, nil
			}
		} else if err != store.ErrCacheMiss {
			c.logger.Warn("intent cache read failed", "error", err)
		}
	}

	decision, err := c.classifyWithModel(ctx, query, language, summary)
	if err != nil {
		c.logger.Warn("intent classification failed, defaulting to chitchat", "error", err)
		return fallbackDecision(), fmt.Errorf("classify intent: %w", err)
	}

	if c.cache != nil {
		if raw, err := json.Marshal(decision); err == nil {
			if err := c.cache.Set(ctx, key, string(raw), c.ttl); err != nil {
				c.logger.Warn("intent cache write failed", "error", err)
			}
		}
	}
	return decision, nil
}

func (c *Classifier) classifyWithModel(ctx context.Context, query, language, summary string) (IntentDecision, error) {
	profile, ok := c.models.Profile(c.models.Classifier)
	if !ok {
		return IntentDecision{}, fmt.Errorf("classifier tier %q not configured", c.models.Classifier)
	}
	provider, err := c.registry.Get(profile.Provider)
	if err != nil {
		return IntentDecision{}, err
	}

	user := fmt.Sprintf("Idioma: %s\nConsulta: %s", language, query)
	if summary != "" {
		user += "\nContexto previo: " + summary
	}

	resp, err := provider.Chat(ctx, providers.ChatRequest{
		Model: profile.Model,
		Messages: []providers.Message{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: user},
		},
		Options: map[string]any{
			providers.OptMaxTokens:   256,
			providers.OptTemperature: 0.0,
		},
	})
	if err != nil {
		return IntentDecision{}, err
	}

	decision, err := parseDecision(resp.Content)
	if err != nil {
		return IntentDecision{}, err
	}
	return normalize(decision), nil
}

// parseDecision extracts the JSON object from the model output, which
// may be wrapped in code fences or prose.
func parseDecision(content string) (IntentDecision, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return IntentDecision{}, fmt.Errorf("no JSON object in classifier output %q", content)
	}
	var d IntentDecision
	if err := json.Unmarshal([]byte(content[start:end+1]), &d); err != nil {
		return IntentDecision{}, fmt.Errorf("decode classifier output: %w", err)
	}
	return d, nil
}

// normalize clamps model output into the decision contract: unknown
// labels and low confidence both degrade to chitchat.
func normalize(d IntentDecision) IntentDecision {
	d.Intent = strings.ToUpper(strings.TrimSpace(d.Intent))
	d.Complexity = strings.ToLower(strings.TrimSpace(d.Complexity))

	switch d.Intent {
	case IntentSearch, IntentRecommend, IntentPlan, IntentChitchat:
	default:
		return fallbackDecision()
	}
	switch d.Complexity {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
	default:
		d.Complexity = ComplexityLow
	}
	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	if d.Confidence < 0.5 {
		d.Intent = IntentChitchat
		d.Complexity = ComplexityLow
	}
	return d
}
