package observer

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a local SQLite-backed bounded append-only log, used in place of
// internal/transport.Persisted's Redis Streams when TRANSPORT_MODE excludes
// redis (a dev/local deployment still wants a persisted, inspectable log of
// everything the observer saw).
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite database at path and
// ensures its schema exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS log_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			stream TEXT NOT NULL,
			topic TEXT NOT NULL,
			source TEXT NOT NULL,
			zmq_seq INTEGER NOT NULL,
			zmq_ts INTEGER NOT NULL,
			recv_ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_log_entries_stream ON log_entries(stream, id)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Entry is one row of the bounded log.
type Entry struct {
	ID      int64
	Stream  string
	Topic   string
	Source  string
	ZmqSeq  uint64
	ZmqTs   int64
	RecvTs  int64
	Payload []byte
}

// Append inserts e and trims stream down to maxLen most-recent rows,
// approximating Redis Streams' MAXLEN ~ semantics for the local fallback.
func (s *Store) Append(ctx context.Context, e Entry, maxLen int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO log_entries (stream, topic, source, zmq_seq, zmq_ts, recv_ts, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Stream, e.Topic, e.Source, e.ZmqSeq, e.ZmqTs, e.RecvTs, e.Payload); err != nil {
		return err
	}

	if maxLen <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM log_entries WHERE stream = ? AND id NOT IN (
			SELECT id FROM log_entries WHERE stream = ? ORDER BY id DESC LIMIT ?
		)`, e.Stream, e.Stream, maxLen)
	return err
}

// Tail returns the most recent limit entries for stream, oldest first.
func (s *Store) Tail(ctx context.Context, stream string, limit int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream, topic, source, zmq_seq, zmq_ts, recv_ts, payload
		FROM log_entries WHERE stream = ? ORDER BY id DESC LIMIT ?`, stream, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Stream, &e.Topic, &e.Source, &e.ZmqSeq, &e.ZmqTs, &e.RecvTs, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// Count reports how many rows currently exist for stream.
func (s *Store) Count(ctx context.Context, stream string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM log_entries WHERE stream = ?`, stream).Scan(&n)
	return n, err
}

// OlderThan returns every entry in stream with recv_ts before cutoff
// (Unix milliseconds), oldest first, used to gather a segment for S3
// archival before it falls out of the bounded hot log.
func (s *Store) OlderThan(ctx context.Context, stream string, cutoffMs int64) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stream, topic, source, zmq_seq, zmq_ts, recv_ts, payload
		FROM log_entries WHERE stream = ? AND recv_ts < ? ORDER BY id ASC`, stream, cutoffMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Stream, &e.Topic, &e.Source, &e.ZmqSeq, &e.ZmqTs, &e.RecvTs, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteIDs removes the given row IDs, called after a successful archival
// upload moves them to cold storage.
func (s *Store) DeleteIDs(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM log_entries WHERE id = ?`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
