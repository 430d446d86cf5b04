package classify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/providers"
	"github.com/rumbo-ai/rumbo/internal/store"
)

type scriptedProvider struct {
	name      string
	responses []*providers.ChatResponse
	err       error
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return p.name }

type mapCache struct {
	data map[string]string
}

func newMapCache() *mapCache { return &mapCache{data: map[string]string{}} }

func (c *mapCache) Get(ctx context.Context, key string) (string, error) {
	v, ok := c.data[key]
	if !ok {
		return "", store.ErrCacheMiss
	}
	return v, nil
}

func (c *mapCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(ctx context.Context, keys ...string) error { return nil }

func (c *mapCache) DeletePattern(ctx context.Context, pattern string) (int, error) { return 0, nil }

func testModels() config.ModelsConfig {
	return config.ModelsConfig{
		Classifier: config.TierSmallFast,
		Profiles: map[string]config.ModelProfile{
			config.TierSmallFast: {Provider: "openai", Model: "gpt-4o-mini"},
		},
	}
}

func newTestClassifier(p providers.Provider, cache store.Cache) *Classifier {
	reg := providers.NewRegistry(config.ProvidersConfig{})
	reg.Register(p)
	return NewClassifier(reg, testModels(), cache, time.Hour, slog.Default())
}

func TestClassifyParsesModelOutput(t *testing.T) {
	p := &scriptedProvider{name: "openai", responses: []*providers.ChatResponse{
		{Content: `{"intent": "SEARCH", "confidence": 0.9, "complexity": "low", "reasoning": "busca bares"}`},
	}}
	c := newTestClassifier(p, newMapCache())

	d, err := c.Classify(context.Background(), "bares en Vigo", "es", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d.Intent != IntentSearch || d.Complexity != ComplexityLow || d.Confidence != 0.9 {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestClassifyStripsCodeFences(t *testing.T) {
	p := &scriptedProvider{name: "openai", responses: []*providers.ChatResponse{
		{Content: "```json\n{\"intent\": \"PLAN\", \"confidence\": 0.8, \"complexity\": \"high\"}\n```"},
	}}
	c := newTestClassifier(p, newMapCache())

	d, err := c.Classify(context.Background(), "plan de finde para 6", "es", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d.Intent != IntentPlan || d.Complexity != ComplexityHigh {
		t.Errorf("unexpected decision %+v", d)
	}
}

func TestClassifyLowConfidenceBecomesChitchat(t *testing.T) {
	p := &scriptedProvider{name: "openai", responses: []*providers.ChatResponse{
		{Content: `{"intent": "PLAN", "confidence": 0.3, "complexity": "high"}`},
	}}
	c := newTestClassifier(p, newMapCache())

	d, err := c.Classify(context.Background(), "mmm no sé", "es", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if d.Intent != IntentChitchat || d.Complexity != ComplexityLow {
		t.Errorf("low confidence should degrade to chitchat/low, got %+v", d)
	}
}

func TestClassifyModelErrorIsSoft(t *testing.T) {
	p := &scriptedProvider{name: "openai", err: errors.New("upstream down")}
	c := newTestClassifier(p, newMapCache())

	d, err := c.Classify(context.Background(), "bares en Vigo", "es", "")
	if err == nil {
		t.Fatal("expected a classification error to be reported")
	}
	if d.Intent != IntentChitchat || d.Confidence != 0 || d.Complexity != ComplexityLow {
		t.Errorf("fallback decision expected, got %+v", d)
	}
}

func TestClassifyCacheDeterminism(t *testing.T) {
	p := &scriptedProvider{name: "openai", responses: []*providers.ChatResponse{
		{Content: `{"intent": "RECOMMEND", "confidence": 0.85, "complexity": "medium"}`},
	}}
	cache := newMapCache()
	c := newTestClassifier(p, cache)

	first, err := c.Classify(context.Background(), "algo romántico para cenar", "es", "resumen")
	if err != nil {
		t.Fatalf("first Classify: %v", err)
	}
	second, err := c.Classify(context.Background(), "algo romántico para cenar", "es", "resumen")
	if err != nil {
		t.Fatalf("second Classify: %v", err)
	}
	if first != second {
		t.Errorf("cached decision differs: %+v vs %+v", first, second)
	}
	if p.calls != 1 {
		t.Errorf("model should be called once, got %d", p.calls)
	}
}

func TestCacheKeyNormalization(t *testing.T) {
	a := CacheKey("  Bares   en VIGO ", "es", "resumen")
	b := CacheKey("bares en vigo", "es", "resumen")
	if a != b {
		t.Errorf("whitespace and case should not change the key: %q vs %q", a, b)
	}
	if a == CacheKey("bares en vigo", "en", "resumen") {
		t.Error("language must be part of the key")
	}
	if a == CacheKey("bares en vigo", "es", "otro resumen") {
		t.Error("summary must be part of the key")
	}
}

func TestDetectEmotion(t *testing.T) {
	cases := []struct {
		query string
		want  string
	}{
		{"gracias, perfecto", "happy"},
		{"esto no funciona, estoy harto", "frustrated"},
		{"qué ganas de ir", "excited"},
		{"bares en Vigo", "neutral"},
	}
	for _, tc := range cases {
		if got := DetectEmotion(tc.query); got.Label != tc.want {
			t.Errorf("DetectEmotion(%q) = %q, want %q", tc.query, got.Label, tc.want)
		}
	}
}
