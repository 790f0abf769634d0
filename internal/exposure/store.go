// Package exposure is the cross-shard source of truth the risk gate
// consults for per-asset/category exposure and duplicate-trade detection.
// Every shard process shares one Postgres database, so these queries see
// trades placed by any shard, not just the calling process.
package exposure

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"
)

// Store implements risk.Exposure against a shared Postgres trades table.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a new Postgres connection pool for dsn. Callers own the
// returned *sql.DB's lifecycle and should Close it on shutdown.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// CurrentExposure returns the sum of suggested_size for open (unsettled)
// trades matching key, where key is either an asset symbol or a market
// category (crypto/sport/economics/politics) depending on which exposure
// check is calling.
func (s *Store) CurrentExposure(ctx context.Context, key string) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(suggested_size), 0)
		FROM trades
		WHERE (asset = $1 OR market_kind = $1) AND settled_at IS NULL`

	var total float64
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// RecentDuplicate reports whether marketID has a recorded trade within
// window of now.
func (s *Store) RecentDuplicate(ctx context.Context, marketID string, window time.Duration) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM trades
			WHERE market_id = $1 AND created_at >= $2
		)`

	cutoff := time.Now().Add(-window)

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, marketID, cutoff).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// RecordTrade inserts a trade row once an execution request has actually
// been published, so later exposure/duplicate checks see it. Together with
// MarkSettled it is one of this package's two mutations; the risk gate
// itself never writes.
func (s *Store) RecordTrade(ctx context.Context, asset, marketKind, marketID string, size float64, createdAt time.Time) error {
	const query = `
		INSERT INTO trades (asset, market_kind, market_id, suggested_size, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query, asset, marketKind, marketID, size, createdAt)
	return err
}

// MarkSettled stamps settled_at on every open trade for marketID, which
// clears them from open exposure; it records no P&L.
func (s *Store) MarkSettled(ctx context.Context, marketID string, settledAt time.Time) error {
	const query = `
		UPDATE trades SET settled_at = $1
		WHERE market_id = $2 AND settled_at IS NULL`

	result, err := s.db.ExecContext(ctx, query, settledAt, marketID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.New("exposure: no open trade found for market_id")
	}
	return nil
}
