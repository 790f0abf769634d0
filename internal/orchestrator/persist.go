package orchestrator

import (
	"context"
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
)

var persistJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// LedgerStore stores discovery:game:{id} assignment blobs in a local SQLite
// database. Rows carry an updated_at stamp and never expire. cmd/orchestrator
// opens a LedgerStore, but the assignment Manager does not write its ledger
// to it and startup does not reload the ledger from it.
type LedgerStore struct {
	db *sql.DB
}

// OpenLedgerStore opens (creating if needed) the SQLite database at path
// and ensures its schema exists.
func OpenLedgerStore(path string) (*LedgerStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS discovery_games (
			event_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`); err != nil {
		db.Close()
		return nil, err
	}
	return &LedgerStore{db: db}, nil
}

func (s *LedgerStore) Close() error { return s.db.Close() }

// Put upserts the discovery:game:{eventID} blob for any JSON-marshalable
// assignment snapshot.
func (s *LedgerStore) Put(ctx context.Context, eventID string, snapshot interface{}) error {
	payload, err := persistJSON.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO discovery_games (event_id, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(event_id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		eventID, string(payload), time.Now())
	return err
}

// Get loads the discovery:game:{eventID} blob into dest (a pointer), and
// reports whether a row existed.
func (s *LedgerStore) Get(ctx context.Context, eventID string, dest interface{}) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM discovery_games WHERE event_id = ?`, eventID).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := persistJSON.Unmarshal([]byte(payload), dest); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes eventID's blob.
func (s *LedgerStore) Delete(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM discovery_games WHERE event_id = ?`, eventID)
	return err
}

// All calls each for every persisted assignment row.
func (s *LedgerStore) All(ctx context.Context, each func(eventID string, payload []byte) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, payload FROM discovery_games`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var eventID, payload string
		if err := rows.Scan(&eventID, &payload); err != nil {
			return err
		}
		if err := each(eventID, []byte(payload)); err != nil {
			return err
		}
	}
	return rows.Err()
}
