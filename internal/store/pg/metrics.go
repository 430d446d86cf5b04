package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rumbo-ai/rumbo/internal/store"
)

// MetricStore implements store.MetricStore backed by Postgres.
type MetricStore struct {
	db *sql.DB
}

func NewMetricStore(db *sql.DB) *MetricStore {
	return &MetricStore{db: db}
}

// AddToBucket upserts-with-increment on the (bucket_hour, model) row.
// The running average is folded in on the database side so concurrent
// workers never lose updates.
func (s *MetricStore) AddToBucket(ctx context.Context, bucketHour time.Time, model string, d store.MetricDelta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_metrics
		   (bucket_hour, model, queries, success, failure, total_tokens, total_cost_usd, avg_duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (bucket_hour, model) DO UPDATE SET
		   queries         = agent_metrics.queries + EXCLUDED.queries,
		   success         = agent_metrics.success + EXCLUDED.success,
		   failure         = agent_metrics.failure + EXCLUDED.failure,
		   total_tokens    = agent_metrics.total_tokens + EXCLUDED.total_tokens,
		   total_cost_usd  = agent_metrics.total_cost_usd + EXCLUDED.total_cost_usd,
		   avg_duration_ms = (agent_metrics.avg_duration_ms * agent_metrics.queries
		                      + EXCLUDED.avg_duration_ms * EXCLUDED.queries)
		                     / GREATEST(agent_metrics.queries + EXCLUDED.queries, 1)`,
		bucketHour.UTC().Truncate(time.Hour), model,
		d.Queries, d.Success, d.Failure, d.Tokens, d.CostUSD, d.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("upsert metrics bucket: %w", err)
	}
	return nil
}
