package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/store"
)

type fakeTurns struct {
	history []store.ConversationTurn
	err     error
	reads   int
}

func (f *fakeTurns) AppendTurn(ctx context.Context, turn *store.ConversationTurn) error {
	f.history = append(f.history, *turn)
	return nil
}

func (f *fakeTurns) SessionHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]store.ConversationTurn, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.history) > limit {
		return f.history[len(f.history)-limit:], nil
	}
	return f.history, nil
}

type fakeCache struct {
	data    map[string]string
	failing bool
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string]string{}} }

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	if f.failing {
		return "", errors.New("cache down")
	}
	v, ok := f.data[key]
	if !ok {
		return "", store.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.failing {
		return errors.New("cache down")
	}
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, keys ...string) error {
	if f.failing {
		return errors.New("cache down")
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if f.failing {
		return 0, errors.New("cache down")
	}
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func testMemoryConfig() config.MemoryConfig {
	return config.MemoryConfig{
		MaxShortTermTurns:    10,
		MaxLongTermTurns:     50,
		MaxTokens:            4000,
		CompressionThreshold: 0.8,
	}
}

func makeTurns(n int, intent string) []store.ConversationTurn {
	turns := make([]store.ConversationTurn, n)
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := range turns {
		turns[i] = store.ConversationTurn{
			ID:        uuid.Must(uuid.NewV7()),
			Query:     fmt.Sprintf("pregunta %d", i),
			Response:  fmt.Sprintf("respuesta %d", i),
			Intent:    intent,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return turns
}

func TestLoadWindowEmptySession(t *testing.T) {
	b := NewBuffer(&fakeTurns{}, newFakeCache(), testMemoryConfig(), time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if len(w.Turns) != 0 || w.Summary != "" || len(w.PreviousPlaces) != 0 {
		t.Errorf("expected empty window, got %+v", w)
	}
}

func TestLoadWindowShortHistoryStaysVerbatim(t *testing.T) {
	ts := &fakeTurns{history: makeTurns(10, "SEARCH")}
	b := NewBuffer(ts, newFakeCache(), testMemoryConfig(), time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if len(w.Turns) != 10 {
		t.Errorf("want 10 verbatim turns, got %d", len(w.Turns))
	}
	if w.Summary != "" {
		t.Errorf("no summary expected at exactly the short-term limit, got %q", w.Summary)
	}
}

func TestLoadWindowSummarizesOlderTurns(t *testing.T) {
	ts := &fakeTurns{history: makeTurns(25, "SEARCH")}
	b := NewBuffer(ts, newFakeCache(), testMemoryConfig(), time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if len(w.Turns) != 10 {
		t.Errorf("want 10 verbatim turns, got %d", len(w.Turns))
	}
	if !strings.Contains(w.Summary, "Resumen de 15 turnos anteriores") {
		t.Errorf("summary should cover the 15 older turns, got %q", w.Summary)
	}
	if !strings.Contains(w.Summary, "search (15)") {
		t.Errorf("summary should count intents, got %q", w.Summary)
	}
}

func TestLoadWindowExtractsPlacesMostRecentFirst(t *testing.T) {
	turns := makeTurns(3, "SEARCH")
	turns[0].Extra = map[string]any{store.ExtraPlacesFound: []store.Place{
		{ID: "p1", Name: "Café Central", Lat: 42.88, Lon: -8.54},
	}}
	turns[2].Extra = map[string]any{store.ExtraPlacesFound: []store.Place{
		{ID: "p2", Name: "Mercado de Abastos", Lat: 42.87, Lon: -8.54},
	}}
	ts := &fakeTurns{history: turns}
	b := NewBuffer(ts, newFakeCache(), testMemoryConfig(), time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if len(w.PreviousPlaces) != 2 {
		t.Fatalf("want 2 place refs, got %d", len(w.PreviousPlaces))
	}
	if w.PreviousPlaces[0].Place.ID != "p2" || w.PreviousPlaces[0].Index != 1 {
		t.Errorf("most recent place should be #1, got %+v", w.PreviousPlaces[0])
	}
	if w.PreviousPlaces[1].Place.ID != "p1" || w.PreviousPlaces[1].TurnsAgo != 3 {
		t.Errorf("older place should carry its turn distance, got %+v", w.PreviousPlaces[1])
	}
}

func TestLoadWindowCompressesOverBudget(t *testing.T) {
	cfg := testMemoryConfig()
	cfg.MaxTokens = 200

	turns := makeTurns(8, "SEARCH")
	for i := range turns {
		turns[i].Response = strings.Repeat("detalles del lugar ", 10)
	}
	ts := &fakeTurns{history: turns}
	b := NewBuffer(ts, newFakeCache(), cfg, time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if w.EstimatedTokens > 180 {
		t.Errorf("window should compress to at most 90%% of budget, got %d tokens", w.EstimatedTokens)
	}
	if len(w.Turns) == 0 {
		t.Error("recent turns that fit the budget should stay verbatim")
	}
	if !strings.Contains(w.Summary, "comprimidos") {
		t.Errorf("summary should note the folded turns, got %q", w.Summary)
	}
}

func TestLoadWindowFoldsSingleOversizedTurn(t *testing.T) {
	cfg := testMemoryConfig()

	turns := makeTurns(1, "SEARCH")
	turns[0].Response = strings.Repeat("x", 40_000)
	ts := &fakeTurns{history: turns}
	b := NewBuffer(ts, newFakeCache(), cfg, time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if w.EstimatedTokens > cfg.MaxTokens {
		t.Errorf("window must never exceed the token budget, got %d of %d", w.EstimatedTokens, cfg.MaxTokens)
	}
	if len(w.Turns) != 0 {
		t.Errorf("an oversized lone turn should fold entirely, %d turns left", len(w.Turns))
	}
	if !strings.Contains(w.Summary, "comprimidos") {
		t.Errorf("summary should note the folded turn, got %q", w.Summary)
	}
}

func TestCompressCapsOversizedSummary(t *testing.T) {
	cfg := testMemoryConfig()
	b := NewBuffer(&fakeTurns{}, newFakeCache(), cfg, time.Minute, slog.Default())

	w := &Window{Summary: strings.Repeat("r", 40_000)}
	w.EstimatedTokens = b.estimate(w)

	b.compress(w)
	if w.EstimatedTokens > cfg.MaxTokens {
		t.Errorf("summary alone must fit the budget, got %d of %d tokens", w.EstimatedTokens, cfg.MaxTokens)
	}
	if w.Summary == "" {
		t.Error("summary should be trimmed, not dropped")
	}
}

func TestLoadWindowServesFromCache(t *testing.T) {
	session := uuid.Must(uuid.NewV7())
	cached := Window{SessionID: session, Summary: "cached"}
	raw, _ := json.Marshal(cached)

	cache := newFakeCache()
	cache.data[CacheKey(session)] = string(raw)
	ts := &fakeTurns{history: makeTurns(5, "SEARCH")}
	b := NewBuffer(ts, cache, testMemoryConfig(), time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), session)
	if err != nil {
		t.Fatalf("LoadWindow: %v", err)
	}
	if w.Summary != "cached" {
		t.Errorf("expected cached window, got %+v", w)
	}
	if ts.reads != 0 {
		t.Errorf("durable store should not be read on cache hit, got %d reads", ts.reads)
	}
}

func TestLoadWindowSurvivesCacheOutage(t *testing.T) {
	cache := newFakeCache()
	cache.failing = true
	ts := &fakeTurns{history: makeTurns(3, "CHITCHAT")}
	b := NewBuffer(ts, cache, testMemoryConfig(), time.Minute, slog.Default())

	w, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7()))
	if err != nil {
		t.Fatalf("cache outage must degrade to durable read: %v", err)
	}
	if len(w.Turns) != 3 {
		t.Errorf("want 3 turns from durable store, got %d", len(w.Turns))
	}
}

func TestLoadWindowDurableFailureIsHard(t *testing.T) {
	ts := &fakeTurns{err: errors.New("connection refused")}
	b := NewBuffer(ts, newFakeCache(), testMemoryConfig(), time.Minute, slog.Default())

	if _, err := b.LoadWindow(context.Background(), uuid.Must(uuid.NewV7())); err == nil {
		t.Fatal("expected error when the durable store is down")
	}
}

func TestInvalidateDropsCachedWindow(t *testing.T) {
	session := uuid.Must(uuid.NewV7())
	other := uuid.Must(uuid.NewV7())
	cache := newFakeCache()
	cache.data[CacheKey(session)] = "{}"
	cache.data[CacheKey(session)+":stale"] = "{}"
	cache.data[CacheKey(other)] = "{}"
	b := NewBuffer(&fakeTurns{}, cache, testMemoryConfig(), time.Minute, slog.Default())

	b.Invalidate(context.Background(), session)
	if _, ok := cache.data[CacheKey(session)]; ok {
		t.Error("cached window should be gone after invalidation")
	}
	if _, ok := cache.data[CacheKey(session)+":stale"]; ok {
		t.Error("derived keys under the session prefix should be swept too")
	}
	if _, ok := cache.data[CacheKey(other)]; !ok {
		t.Error("other sessions must keep their cached windows")
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.text); got != tc.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tc.text), got, tc.want)
		}
	}
}
