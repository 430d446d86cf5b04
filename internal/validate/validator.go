package validate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/store"
)

// Sentinel validation errors. The orchestrator maps these to its error
// taxonomy and a localized user message.
var (
	ErrEmptyUser           = errors.New("user_id cannot be empty")
	ErrInvalidSession      = errors.New("session_id must be a valid UUID")
	ErrInvalidQuery        = errors.New("query must be between 1 and 4000 characters")
	ErrUnsupportedLanguage = errors.New("language is not supported")
	ErrInvalidLocation     = errors.New("location is out of range")
)

// MaxQueryChars bounds the query length, counted in runes.
const MaxQueryChars = 4000

// Location is an optional pair of user coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Request is the raw pipeline entry before validation.
type Request struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Query     string    `json:"query"`
	Language  string    `json:"language"`
	Location  *Location `json:"location,omitempty"`
}

// Context is the immutable validated context for one request.
type Context struct {
	UserID      string
	SessionID   uuid.UUID
	Query       string
	Language    string
	Location    *Location
	Preferences *store.UserPreferences

	// Derived from merged preferences.
	BudgetMode     bool
	PreferredModel string
}

// Validator checks request fields and merges stored user preferences.
type Validator struct {
	languages config.Languages
	prefs     store.PreferenceStore
}

func New(languages config.Languages, prefs store.PreferenceStore) *Validator {
	return &Validator{languages: languages, prefs: prefs}
}

// Validate builds a validated context or fails with one of the sentinel
// errors. The preferences read is the only side effect.
func (v *Validator) Validate(ctx context.Context, req Request) (*Context, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ErrEmptyUser
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrInvalidQuery
	}
	if n := utf8.RuneCountInString(query); n > MaxQueryChars {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuery, n)
	}

	// Session IDs are client-generated; a missing one starts a fresh session.
	var sessionID uuid.UUID
	if req.SessionID == "" {
		sessionID = uuid.Must(uuid.NewV7())
		slog.Info("session generated", "session_id", sessionID)
	} else {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSession, req.SessionID)
		}
		sessionID = parsed
	}

	language := strings.ToLower(strings.TrimSpace(req.Language))
	if language == "" {
		language = v.languages.Default
	}
	if !v.languages.Supports(language) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}

	if req.Location != nil {
		if req.Location.Lat < -90 || req.Location.Lat > 90 {
			return nil, fmt.Errorf("%w: lat=%v", ErrInvalidLocation, req.Location.Lat)
		}
		if req.Location.Lon < -180 || req.Location.Lon > 180 {
			return nil, fmt.Errorf("%w: lon=%v", ErrInvalidLocation, req.Location.Lon)
		}
	}

	vc := &Context{
		UserID:    userID,
		SessionID: sessionID,
		Query:     query,
		Language:  language,
		Location:  req.Location,
	}

	// Preferences never override a request-supplied language.
	if v.prefs != nil {
		prefs, err := v.prefs.Get(ctx, userID)
		switch {
		case err == nil:
			vc.Preferences = prefs
			vc.BudgetMode = prefs.BudgetMode
			vc.PreferredModel = prefs.PreferredModel
			if req.Language == "" && prefs.PreferredLanguage != "" && v.languages.Supports(prefs.PreferredLanguage) {
				vc.Language = strings.ToLower(prefs.PreferredLanguage)
			}
		case errors.Is(err, store.ErrNotFound):
			// first contact, nothing to merge
		default:
			slog.Warn("preferences read failed", "user_id", userID, "error", err)
		}
	}

	slog.Debug("context validated",
		"user_id", vc.UserID,
		"session_id", vc.SessionID,
		"language", vc.Language,
		"has_location", vc.Location != nil,
	)
	return vc, nil
}
