// Package router maps an intent decision to a concrete model profile.
package router

import (
	"fmt"
	"log/slog"

	"github.com/rumbo-ai/rumbo/internal/classify"
	"github.com/rumbo-ai/rumbo/internal/config"
)

// ModelDecision is the routed model plus the cost rates the metrics
// recorder needs.
type ModelDecision struct {
	Tier             string
	Provider         string
	Model            string
	MaxTokens        int
	Temperature      float64
	InputCostPer1K   float64
	OutputCostPer1K  float64
	MaxContextTokens int
}

// Router is a pure lookup over configured tiers; provider names never
// appear in routing logic.
type Router struct {
	models config.ModelsConfig
}

func New(models config.ModelsConfig) *Router {
	return &Router{models: models}
}

// Route selects a tier for (intent, complexity, budgetMode). Budget
// mode forces the small fast tier for everything except chitchat,
// which already runs on the cheapest conversational model.
func (r *Router) Route(intent, complexity string, budgetMode bool) (ModelDecision, error) {
	tier := tierFor(intent, complexity)
	if budgetMode && tier != config.TierChitchat {
		tier = config.TierSmallFast
	}
	return r.decisionFor(tier)
}

// RouteWithPreference applies a user's preferred model when it is
// compatible with the routed tier's provider set; otherwise the routed
// decision stands.
func (r *Router) RouteWithPreference(intent, complexity string, budgetMode bool, preferredModel string) (ModelDecision, error) {
	decision, err := r.Route(intent, complexity, budgetMode)
	if err != nil {
		return decision, err
	}
	if preferredModel == "" || budgetMode {
		return decision, nil
	}
	for tier, p := range r.models.Profiles {
		if p.Model == preferredModel {
			override, err := r.decisionFor(tier)
			if err != nil {
				return decision, nil
			}
			slog.Debug("preferred model override", "model", preferredModel, "tier", tier)
			return override, nil
		}
	}
	// Unknown models are ignored rather than trusted blindly.
	slog.Debug("preferred model not configured, ignoring", "model", preferredModel)
	return decision, nil
}

func tierFor(intent, complexity string) string {
	switch intent {
	case classify.IntentSearch:
		if complexity == classify.ComplexityHigh {
			return config.TierMid
		}
		return config.TierSmallFast
	case classify.IntentRecommend:
		if complexity == classify.ComplexityLow {
			return config.TierSmallFast
		}
		return config.TierMid
	case classify.IntentPlan:
		if complexity == classify.ComplexityHigh {
			return config.TierTop
		}
		return config.TierMid
	default:
		return config.TierChitchat
	}
}

func (r *Router) decisionFor(tier string) (ModelDecision, error) {
	p, ok := r.models.Profile(tier)
	if !ok {
		return ModelDecision{}, fmt.Errorf("tier %q is not configured", tier)
	}
	return ModelDecision{
		Tier:             tier,
		Provider:         p.Provider,
		Model:            p.Model,
		MaxTokens:        p.MaxTokens,
		Temperature:      p.Temperature,
		InputCostPer1K:   p.InputCostPer1K,
		OutputCostPer1K:  p.OutputCostPer1K,
		MaxContextTokens: p.MaxContextTokens,
	}, nil
}
