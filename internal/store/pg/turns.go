package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rumbo-ai/rumbo/internal/store"
)

// TurnStore implements store.TurnStore backed by Postgres.
type TurnStore struct {
	db *sql.DB
}

func NewTurnStore(db *sql.DB) *TurnStore {
	return &TurnStore{db: db}
}

func (s *TurnStore) AppendTurn(ctx context.Context, turn *store.ConversationTurn) error {
	if turn.ID == uuid.Nil {
		turn.ID = uuid.Must(uuid.NewV7())
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	extra := turn.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("marshal turn metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns
		   (id, session_id, user_id, query, response, intent, model,
		    input_tokens, output_tokens, cost_usd, duration_ms, created_at, extra_metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		turn.ID, turn.SessionID, turn.UserID, turn.Query, turn.Response,
		turn.Intent, turn.Model, turn.InputTokens, turn.OutputTokens,
		turn.CostUSD, turn.DurationMS, turn.CreatedAt, extraJSON,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// SessionHistory returns up to limit most recent turns in chronological
// order. The (session_id, created_at) index keeps this a range scan.
func (s *TurnStore) SessionHistory(ctx context.Context, sessionID uuid.UUID, limit int) ([]store.ConversationTurn, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, query, response, intent, model,
		        input_tokens, output_tokens, cost_usd, duration_ms, created_at, extra_metadata
		   FROM (SELECT * FROM conversation_turns
		          WHERE session_id = $1
		          ORDER BY created_at DESC, id DESC
		          LIMIT $2) recent
		  ORDER BY created_at ASC, id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query session history: %w", err)
	}
	defer rows.Close()

	var turns []store.ConversationTurn
	for rows.Next() {
		var t store.ConversationTurn
		var extraJSON []byte
		if err := rows.Scan(
			&t.ID, &t.SessionID, &t.UserID, &t.Query, &t.Response, &t.Intent, &t.Model,
			&t.InputTokens, &t.OutputTokens, &t.CostUSD, &t.DurationMS, &t.CreatedAt, &extraJSON,
		); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if len(extraJSON) > 0 {
			if err := json.Unmarshal(extraJSON, &t.Extra); err != nil {
				return nil, fmt.Errorf("decode turn metadata %s: %w", t.ID, err)
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}
