package router

import (
	"testing"

	"github.com/rumbo-ai/rumbo/internal/classify"
	"github.com/rumbo-ai/rumbo/internal/config"
)

func testRouter() *Router {
	return New(config.Default().Models)
}

func TestRouteTable(t *testing.T) {
	cases := []struct {
		intent     string
		complexity string
		budget     bool
		wantTier   string
	}{
		{classify.IntentSearch, classify.ComplexityLow, false, config.TierSmallFast},
		{classify.IntentSearch, classify.ComplexityMedium, false, config.TierSmallFast},
		{classify.IntentSearch, classify.ComplexityHigh, false, config.TierMid},
		{classify.IntentSearch, classify.ComplexityHigh, true, config.TierSmallFast},
		{classify.IntentRecommend, classify.ComplexityLow, false, config.TierSmallFast},
		{classify.IntentRecommend, classify.ComplexityMedium, false, config.TierMid},
		{classify.IntentRecommend, classify.ComplexityHigh, false, config.TierMid},
		{classify.IntentRecommend, classify.ComplexityHigh, true, config.TierSmallFast},
		{classify.IntentPlan, classify.ComplexityLow, false, config.TierMid},
		{classify.IntentPlan, classify.ComplexityMedium, false, config.TierMid},
		{classify.IntentPlan, classify.ComplexityHigh, false, config.TierTop},
		{classify.IntentPlan, classify.ComplexityHigh, true, config.TierSmallFast},
		{classify.IntentChitchat, classify.ComplexityLow, false, config.TierChitchat},
		{classify.IntentChitchat, classify.ComplexityHigh, true, config.TierChitchat},
	}

	r := testRouter()
	for _, tc := range cases {
		d, err := r.Route(tc.intent, tc.complexity, tc.budget)
		if err != nil {
			t.Fatalf("Route(%s,%s,%v): %v", tc.intent, tc.complexity, tc.budget, err)
		}
		if d.Tier != tc.wantTier {
			t.Errorf("Route(%s,%s,%v) = %s, want %s", tc.intent, tc.complexity, tc.budget, d.Tier, tc.wantTier)
		}
	}
}

func TestRouteAlwaysReturnsConfiguredModel(t *testing.T) {
	r := testRouter()
	cfg := config.Default()

	intents := []string{classify.IntentSearch, classify.IntentRecommend, classify.IntentPlan, classify.IntentChitchat}
	complexities := []string{classify.ComplexityLow, classify.ComplexityMedium, classify.ComplexityHigh}
	for _, intent := range intents {
		for _, complexity := range complexities {
			for _, budget := range []bool{false, true} {
				d, err := r.Route(intent, complexity, budget)
				if err != nil {
					t.Fatalf("Route(%s,%s,%v): %v", intent, complexity, budget, err)
				}
				p, ok := cfg.Models.Profiles[d.Tier]
				if !ok || p.Model != d.Model {
					t.Errorf("Route(%s,%s,%v) returned model %q not present in configuration", intent, complexity, budget, d.Model)
				}
			}
		}
	}
}

func TestRouteWithPreference(t *testing.T) {
	r := testRouter()

	d, err := r.RouteWithPreference(classify.IntentSearch, classify.ComplexityLow, false, "gpt-4")
	if err != nil {
		t.Fatalf("RouteWithPreference: %v", err)
	}
	if d.Model != "gpt-4" {
		t.Errorf("configured preferred model should override, got %q", d.Model)
	}

	d, err = r.RouteWithPreference(classify.IntentSearch, classify.ComplexityLow, false, "nonexistent-model")
	if err != nil {
		t.Fatalf("RouteWithPreference: %v", err)
	}
	if d.Tier != config.TierSmallFast {
		t.Errorf("unknown preferred model should fall back to routed tier, got %s", d.Tier)
	}

	d, err = r.RouteWithPreference(classify.IntentPlan, classify.ComplexityHigh, true, "gpt-4")
	if err != nil {
		t.Fatalf("RouteWithPreference: %v", err)
	}
	if d.Tier != config.TierSmallFast {
		t.Errorf("budget mode must win over preference, got %s", d.Tier)
	}
}
