package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrCacheMiss is returned by Cache.Get when the key is absent or expired.
var ErrCacheMiss = errors.New("store: cache miss")

// ConversationTurn is one (user query, assistant response) pair.
// Rows are append-only; the durable store is the source of truth for
// everything the memory buffer rebuilds across workers.
type ConversationTurn struct {
	ID           uuid.UUID      `json:"id"`
	SessionID    uuid.UUID      `json:"session_id"`
	UserID       string         `json:"user_id"`
	Query        string         `json:"query"`
	Response     string         `json:"response"`
	Intent       string         `json:"intent"`
	Model        string         `json:"model"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	CostUSD      float64        `json:"cost_usd"`
	DurationMS   int            `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
	Extra        map[string]any `json:"extra_metadata,omitempty"`
}

// Well-known keys inside ConversationTurn.Extra.
const (
	ExtraPlanParams  = "plan_params"
	ExtraPlacesFound = "places_found"
	ExtraTitle       = "title"
	ExtraEmotion     = "emotion"
)

// Place is the canonical place record returned by the Places service and
// persisted in turn metadata for later coreference resolution.
type Place struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Address    string  `json:"address,omitempty"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Rating     float64 `json:"rating,omitempty"`
	Category   string  `json:"category,omitempty"`
	PriceLevel int     `json:"price_level,omitempty"`
	OpenNow    *bool   `json:"open_now,omitempty"`
}

// UserPreferences holds per-user settings merged into the request context.
type UserPreferences struct {
	UserID            string         `json:"user_id"`
	PreferredLanguage string         `json:"preferred_language,omitempty"`
	PreferredModel    string         `json:"preferred_model,omitempty"`
	BudgetMode        bool           `json:"budget_mode"`
	Favorites         map[string]any `json:"favorites,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// MetricDelta is one request's contribution to an hourly aggregate bucket.
type MetricDelta struct {
	Queries    int
	Success    int
	Failure    int
	Tokens     int64
	CostUSD    float64
	DurationMS int
}

// TurnStore persists and reads conversation turns.
type TurnStore interface {
	// AppendTurn inserts a new turn. Appends within a session are
	// serialized by the store; created_at ordering is write ordering.
	AppendTurn(ctx context.Context, turn *ConversationTurn) error

	// SessionHistory returns up to limit most recent turns for a session
	// in chronological order.
	SessionHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]ConversationTurn, error)
}

// PreferenceStore reads and upserts user preferences.
type PreferenceStore interface {
	// Get returns ErrNotFound when no row exists for the user.
	Get(ctx context.Context, userID string) (*UserPreferences, error)
	Upsert(ctx context.Context, prefs *UserPreferences) error
}

// MetricStore accumulates hourly per-model aggregates.
type MetricStore interface {
	// AddToBucket upserts-with-increment so concurrent workers never
	// lose updates on the same (bucket_hour, model) row.
	AddToBucket(ctx context.Context, bucketHour time.Time, model string, delta MetricDelta) error
}

// Cache is a volatile key/value shadow of the durable store.
// Implementations must treat all failures as soft: callers log and fall
// back to the durable store.
type Cache interface {
	// Get returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// DeletePattern removes all keys matching a glob pattern and returns
	// the number deleted.
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Stores bundles every persistence port the pipeline needs.
type Stores struct {
	Turns       TurnStore
	Preferences PreferenceStore
	Metrics     MetricStore
	Cache       Cache
}
