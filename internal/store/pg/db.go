package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rumbo-ai/rumbo/internal/store"
)

// OpenDB opens a pooled Postgres connection via the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores creates all persistence ports backed by one Postgres pool.
// The cache is attached separately by the caller.
func NewStores(db *sql.DB) *store.Stores {
	return &store.Stores{
		Turns:       NewTurnStore(db),
		Preferences: NewPreferenceStore(db),
		Metrics:     NewMetricStore(db),
	}
}
