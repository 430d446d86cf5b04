// Package memory maintains the per-session conversation window: recent
// turns kept verbatim, older turns folded into a deterministic summary,
// and place mentions carried forward for coreference resolution.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/store"
)

// PlaceRef is a place mentioned earlier in the session, enumerated
// most-recent-first so "el segundo" style references resolve stably.
type PlaceRef struct {
	Index    int         `json:"index"` // 1-based position in the reference list
	TurnsAgo int         `json:"turns_ago"`
	Place    store.Place `json:"place"`
}

// Window is the assembled memory for one session.
type Window struct {
	SessionID       uuid.UUID                `json:"session_id"`
	Turns           []store.ConversationTurn `json:"turns"` // verbatim, chronological
	Summary         string                   `json:"summary,omitempty"`
	PreviousPlaces  []PlaceRef               `json:"previous_places,omitempty"`
	EstimatedTokens int                      `json:"estimated_tokens"`
}

// Buffer loads windows from the durable store with a short-TTL cache in
// front. The cache is an optimization only: any cache failure degrades
// to a durable read, while a durable read failure is a hard error.
type Buffer struct {
	turns  store.TurnStore
	cache  store.Cache
	cfg    config.MemoryConfig
	ttl    time.Duration
	logger *slog.Logger
}

func NewBuffer(turns store.TurnStore, cache store.Cache, cfg config.MemoryConfig, ttl time.Duration, logger *slog.Logger) *Buffer {
	return &Buffer{turns: turns, cache: cache, cfg: cfg, ttl: ttl, logger: logger}
}

// CacheKey returns the cache key for a session's memory window.
func CacheKey(sessionID uuid.UUID) string {
	return "agent:memory:" + sessionID.String()
}

// EstimateTokens approximates token usage as ceil(len/4), which tracks
// real tokenizers closely enough for window budgeting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// LoadWindow returns the memory window for a session, serving from the
// cache when possible and rebuilding from the durable store otherwise.
func (b *Buffer) LoadWindow(ctx context.Context, sessionID uuid.UUID) (*Window, error) {
	key := CacheKey(sessionID)

	if b.cache != nil {
		if raw, err := b.cache.Get(ctx, key); err == nil {
			var w Window
			if err := json.Unmarshal([]byte(raw), &w); err == nil {
				return &w, nil
			}
			b.logger.Warn("memory cache entry corrupt, rebuilding", "session", sessionID, "key", key)
		} else if err != store.ErrCacheMiss {
			b.logger.Warn("memory cache read failed", "session", sessionID, "error", err)
		}
	}

	history, err := b.turns.SessionHistory(ctx, sessionID, b.cfg.MaxLongTermTurns)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}

	w := b.build(sessionID, history)

	if b.cache != nil {
		if raw, err := json.Marshal(w); err == nil {
			if err := b.cache.Set(ctx, key, string(raw), b.ttl); err != nil {
				b.logger.Warn("memory cache write failed", "session", sessionID, "error", err)
			}
		}
	}
	return w, nil
}

// Invalidate drops every cached entry for the session after a new turn
// is persisted so the next read on any worker rebuilds from the durable
// store. The pattern delete also sweeps any derived keys written under
// the session prefix.
func (b *Buffer) Invalidate(ctx context.Context, sessionID uuid.UUID) {
	if b.cache == nil {
		return
	}
	if _, err := b.cache.DeletePattern(ctx, CacheKey(sessionID)+"*"); err != nil {
		b.logger.Warn("memory cache invalidation failed", "session", sessionID, "error", err)
	}
}

// build assembles a window from chronological history: the newest turns
// stay verbatim, everything older folds into the summary, and place
// mentions are enumerated most-recent-first.
func (b *Buffer) build(sessionID uuid.UUID, history []store.ConversationTurn) *Window {
	w := &Window{SessionID: sessionID}
	if len(history) == 0 {
		return w
	}

	verbatim := history
	var summarized []store.ConversationTurn
	if len(history) > b.cfg.MaxShortTermTurns {
		cut := len(history) - b.cfg.MaxShortTermTurns
		summarized = history[:cut]
		verbatim = history[cut:]
	}

	w.Turns = verbatim
	w.Summary = summarize(summarized)
	w.PreviousPlaces = extractPlaces(history)
	w.EstimatedTokens = b.estimate(w)

	b.compress(w)
	return w
}

// compress drops the oldest verbatim turns, folding them into the
// summary, until the window fits under 90% of the token budget. It
// only triggers once the estimate crosses the compression threshold.
// A single oversized turn folds entirely; whatever still overflows
// after that is shed from the place references and the summary itself,
// so the estimate never leaves the budget.
func (b *Buffer) compress(w *Window) {
	threshold := int(float64(b.cfg.MaxTokens) * b.cfg.CompressionThreshold)
	if w.EstimatedTokens < threshold {
		return
	}

	target := int(float64(b.cfg.MaxTokens) * 0.9)
	var folded []store.ConversationTurn
	for len(w.Turns) > 0 && w.EstimatedTokens > target {
		folded = append(folded, w.Turns[0])
		w.Turns = w.Turns[1:]
		w.Summary = appendFolded(w.Summary, folded)
		w.EstimatedTokens = b.estimate(w)
	}
	// Place refs are ordered most-recent-first, so trimming from the
	// tail sheds the oldest mentions.
	for len(w.PreviousPlaces) > 0 && w.EstimatedTokens > target {
		w.PreviousPlaces = w.PreviousPlaces[:len(w.PreviousPlaces)-1]
		w.EstimatedTokens = b.estimate(w)
	}
	if w.EstimatedTokens > target {
		w.Summary = truncateToTokens(w.Summary, EstimateTokens(w.Summary)-(w.EstimatedTokens-target))
		w.EstimatedTokens = b.estimate(w)
	}
	if len(folded) > 0 {
		b.logger.Debug("memory window compressed",
			"session", w.SessionID, "folded_turns", len(folded), "estimated_tokens", w.EstimatedTokens)
	}
}

// truncateToTokens trims s so that EstimateTokens(s) stays within
// budget, cutting at a rune boundary.
func truncateToTokens(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	max := budget * 4
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func (b *Buffer) estimate(w *Window) int {
	total := EstimateTokens(w.Summary)
	for _, t := range w.Turns {
		total += EstimateTokens(t.Query) + EstimateTokens(t.Response)
	}
	for _, p := range w.PreviousPlaces {
		total += EstimateTokens(p.Place.Name)
	}
	return total
}

// summarize produces a deterministic rule-based digest of older turns.
// No model call here: the digest must be identical on every worker so
// cached and rebuilt windows agree.
func summarize(turns []store.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}

	intents := map[string]int{}
	places := 0
	for _, t := range turns {
		if t.Intent != "" {
			intents[t.Intent]++
		}
		places += placesInTurn(t)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Resumen de %d turnos anteriores.", len(turns))

	if len(intents) > 0 {
		names := make([]string, 0, len(intents))
		for name := range intents {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s (%d)", strings.ToLower(name), intents[name]))
		}
		fmt.Fprintf(&sb, " Intenciones: %s.", strings.Join(parts, ", "))
	}
	if places > 0 {
		fmt.Fprintf(&sb, " Lugares mencionados: %d.", places)
	}
	return sb.String()
}

// appendFolded rewrites the compression note at the end of the summary
// to reflect the running count of folded turns.
func appendFolded(summary string, folded []store.ConversationTurn) string {
	const marker = "Turnos recientes comprimidos: "
	if i := strings.Index(summary, marker); i >= 0 {
		summary = strings.TrimSpace(summary[:i])
	}
	note := fmt.Sprintf("%s%d.", marker, len(folded))
	if summary == "" {
		return note
	}
	return summary + " " + note
}

// extractPlaces walks history newest-first collecting place mentions
// from turn metadata. Index is assigned in encounter order so the most
// recent place is always #1.
func extractPlaces(history []store.ConversationTurn) []PlaceRef {
	var refs []PlaceRef
	seen := map[string]bool{}
	for i := len(history) - 1; i >= 0; i-- {
		turnsAgo := len(history) - i
		for _, p := range turnPlaces(history[i]) {
			id := p.ID
			if id == "" {
				id = p.Name
			}
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			refs = append(refs, PlaceRef{
				Index:    len(refs) + 1,
				TurnsAgo: turnsAgo,
				Place:    p,
			})
		}
	}
	return refs
}

func placesInTurn(t store.ConversationTurn) int {
	return len(turnPlaces(t))
}

// turnPlaces decodes the places_found metadata. After a JSON round-trip
// through the durable store the value arrives as []any, so it goes back
// through the codec to recover typed places.
func turnPlaces(t store.ConversationTurn) []store.Place {
	raw, ok := t.Extra[store.ExtraPlacesFound]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var places []store.Place
	if err := json.Unmarshal(data, &places); err != nil {
		return nil
	}
	return places
}
