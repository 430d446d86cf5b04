package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rumbo-ai/rumbo/internal/store"
)

// PreferenceStore implements store.PreferenceStore backed by Postgres.
type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

func (s *PreferenceStore) Get(ctx context.Context, userID string) (*store.UserPreferences, error) {
	var p store.UserPreferences
	var favJSON []byte

	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, COALESCE(preferred_language, ''), COALESCE(preferred_model, ''),
		        budget_mode, favorites, updated_at
		   FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.PreferredLanguage, &p.PreferredModel, &p.BudgetMode, &favJSON, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	if len(favJSON) > 0 {
		if err := json.Unmarshal(favJSON, &p.Favorites); err != nil {
			return nil, fmt.Errorf("decode favorites: %w", err)
		}
	}
	return &p, nil
}

func (s *PreferenceStore) Upsert(ctx context.Context, prefs *store.UserPreferences) error {
	favorites := prefs.Favorites
	if favorites == nil {
		favorites = map[string]any{}
	}
	favJSON, err := json.Marshal(favorites)
	if err != nil {
		return fmt.Errorf("marshal favorites: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_preferences
		   (user_id, preferred_language, preferred_model, budget_mode, favorites, updated_at)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   preferred_language = EXCLUDED.preferred_language,
		   preferred_model    = EXCLUDED.preferred_model,
		   budget_mode        = EXCLUDED.budget_mode,
		   favorites          = EXCLUDED.favorites,
		   updated_at         = EXCLUDED.updated_at`,
		prefs.UserID, prefs.PreferredLanguage, prefs.PreferredModel,
		prefs.BudgetMode, favJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}
