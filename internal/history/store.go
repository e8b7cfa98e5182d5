package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one capture session.
type Record struct {
	ID         string     `json:"id"`
	Channels   []string   `json:"channels"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	State      string     `json:"state"`
	Overflows  uint64     `json:"overflows"`
	FailReason string     `json:"fail_reason,omitempty"`
}

// Store is the SQLite-backed journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			channels_json TEXT NOT NULL DEFAULT '[]',
			state TEXT NOT NULL,
			overflows INTEGER NOT NULL DEFAULT 0,
			fail_reason TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Begin records a session that has just entered Running.
func (s *Store) Begin(id string, channels []string, at time.Time) error {
	channelsJSON, err := json.Marshal(channels)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, channels_json, state, started_at) VALUES (?, ?, 'Running', ?)`,
		id, string(channelsJSON), at.UnixMilli(),
	)
	return err
}

// End records how a session finished.
func (s *Store) End(id string, state string, overflows uint64, reason string, at time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET state = ?, overflows = ?, fail_reason = ?, ended_at = ? WHERE id = ?`,
		state, int64(overflows), reason, at.UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, channels_json, state, overflows, fail_reason, started_at, ended_at
		 FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec          Record
			channelsJSON string
			overflows    int64
			startedAt    int64
			endedAt      sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &channelsJSON, &rec.State, &overflows, &rec.FailReason, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(channelsJSON), &rec.Channels); err != nil {
			return nil, fmt.Errorf("session %s channels: %w", rec.ID, err)
		}
		rec.Overflows = uint64(overflows)
		rec.StartedAt = time.UnixMilli(startedAt).UTC()
		if endedAt.Valid {
			t := time.UnixMilli(endedAt.Int64).UTC()
			rec.EndedAt = &t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
