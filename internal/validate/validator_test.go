package validate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/rumbo-ai/rumbo/internal/config"
	"github.com/rumbo-ai/rumbo/internal/store"
)

type fakePrefs struct {
	byUser map[string]*store.UserPreferences
}

func (f *fakePrefs) Get(_ context.Context, userID string) (*store.UserPreferences, error) {
	if p, ok := f.byUser[userID]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakePrefs) Upsert(_ context.Context, p *store.UserPreferences) error {
	f.byUser[p.UserID] = p
	return nil
}

func testLanguages() config.Languages {
	return config.Languages{Supported: []string{"es", "en", "ca", "gl"}, Default: "es"}
}

func TestValidate_Errors(t *testing.T) {
	v := New(testLanguages(), &fakePrefs{byUser: map[string]*store.UserPreferences{}})
	sid := uuid.NewString()

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"empty user", Request{SessionID: sid, Query: "hola", Language: "es"}, ErrEmptyUser},
		{"bad session", Request{UserID: "u1", SessionID: "not-a-uuid", Query: "hola", Language: "es"}, ErrInvalidSession},
		{"empty query", Request{UserID: "u1", SessionID: sid, Language: "es"}, ErrInvalidQuery},
		{"blank query", Request{UserID: "u1", SessionID: sid, Query: "   \n\t ", Language: "es"}, ErrInvalidQuery},
		{"overlong query", Request{UserID: "u1", SessionID: sid, Query: strings.Repeat("a", 5000), Language: "es"}, ErrInvalidQuery},
		{"bad language", Request{UserID: "u1", SessionID: sid, Query: "hola", Language: "fr"}, ErrUnsupportedLanguage},
		{"lat out of range", Request{UserID: "u1", SessionID: sid, Query: "hola", Language: "es", Location: &Location{Lat: 91}}, ErrInvalidLocation},
		{"lon out of range", Request{UserID: "u1", SessionID: sid, Query: "hola", Language: "es", Location: &Location{Lon: -181}}, ErrInvalidLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidate_QueryAtLimitAccepted(t *testing.T) {
	v := New(testLanguages(), &fakePrefs{byUser: map[string]*store.UserPreferences{}})

	// Rune count is what matters, not bytes: 4000 two-byte runes are fine.
	vc, err := v.Validate(context.Background(), Request{
		UserID: "u1", SessionID: uuid.NewString(), Query: strings.Repeat("ñ", MaxQueryChars), Language: "es",
	})
	if err != nil {
		t.Fatalf("a query at the limit must pass: %v", err)
	}
	if vc.Query == "" {
		t.Error("query should be carried into the context")
	}
}

func TestValidate_QueryIsTrimmed(t *testing.T) {
	v := New(testLanguages(), &fakePrefs{byUser: map[string]*store.UserPreferences{}})

	vc, err := v.Validate(context.Background(), Request{
		UserID: "u1", SessionID: uuid.NewString(), Query: "  bares en Vigo  ", Language: "es",
	})
	if err != nil {
		t.Fatal(err)
	}
	if vc.Query != "bares en Vigo" {
		t.Errorf("query = %q, want trimmed", vc.Query)
	}
}

func TestValidate_GeneratesSessionWhenMissing(t *testing.T) {
	v := New(testLanguages(), &fakePrefs{byUser: map[string]*store.UserPreferences{}})

	vc, err := v.Validate(context.Background(), Request{UserID: "u1", Query: "hola", Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	if vc.SessionID == uuid.Nil {
		t.Error("expected a generated session id")
	}
	if vc.Language != "en" {
		t.Errorf("language = %q, want en", vc.Language)
	}
}

func TestValidate_MergesPreferences(t *testing.T) {
	prefs := &fakePrefs{byUser: map[string]*store.UserPreferences{
		"u1": {UserID: "u1", PreferredLanguage: "ca", PreferredModel: "mid_tier", BudgetMode: true},
	}}
	v := New(testLanguages(), prefs)

	// No request language → preference wins.
	vc, err := v.Validate(context.Background(), Request{UserID: "u1", SessionID: uuid.NewString(), Query: "hola"})
	if err != nil {
		t.Fatal(err)
	}
	if vc.Language != "ca" {
		t.Errorf("language = %q, want ca (from preferences)", vc.Language)
	}
	if !vc.BudgetMode {
		t.Error("budget mode not merged")
	}
	if vc.PreferredModel != "mid_tier" {
		t.Errorf("preferred model = %q", vc.PreferredModel)
	}

	// Request language always beats the stored preference.
	vc, err = v.Validate(context.Background(), Request{UserID: "u1", SessionID: uuid.NewString(), Query: "hola", Language: "en"})
	if err != nil {
		t.Fatal(err)
	}
	if vc.Language != "en" {
		t.Errorf("language = %q, want en (request overrides preferences)", vc.Language)
	}
}

func TestValidate_UnknownUserHasNoPreferences(t *testing.T) {
	v := New(testLanguages(), &fakePrefs{byUser: map[string]*store.UserPreferences{}})

	vc, err := v.Validate(context.Background(), Request{UserID: "stranger", SessionID: uuid.NewString(), Query: "hola", Language: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if vc.Preferences != nil {
		t.Error("expected nil preferences for unknown user")
	}
}
