// Package journal keeps a SQLite log of notable interaction events:
// restarts, interrupt escalations, questions and answers, and navigation
// outcomes.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Kind classifies an entry.
type Kind string

const (
	KindRestart    Kind = "restart"
	KindEscalation Kind = "escalation"
	KindQuestion   Kind = "question"
	KindLocation   Kind = "location"
	KindNavigation Kind = "navigation"
	KindState      Kind = "state"
)

// ErrInvalidKind is returned when an entry has no kind.
var ErrInvalidKind = errors.New("journal: entry kind required")

// Entry is one journal record.
type Entry struct {
	ID      string    `json:"id"`
	RunID   string    `json:"run_id,omitempty"`
	Kind    Kind      `json:"kind"`
	Subject string    `json:"subject,omitempty"`
	Outcome string    `json:"outcome,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Time    time.Time `json:"time"`
}

// Recorder appends entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) (Entry, error)
}

// Store is a SQLite-backed journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the journal at path. The path ":memory:" keeps the
// journal in memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}

	s := &Store{db: db, logger: logger.With("component", "journal.Store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends e, assigning an ID and time when they are unset.
func (s *Store) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.Kind == "" {
		return Entry{}, ErrInvalidKind
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO entries (id, run_id, kind, subject, outcome, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, string(e.Kind), e.Subject, e.Outcome, e.Detail, e.Time.UnixNano(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: record: %w", err)
	}
	s.logger.Debug("recorded", "kind", e.Kind, "subject", e.Subject, "outcome", e.Outcome)
	return e, nil
}

// Recent returns up to limit entries, newest first. An empty kind matches
// every entry.
func (s *Store) Recent(ctx context.Context, kind Kind, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, run_id, kind, subject, outcome, detail, created_at FROM entries`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var ts int64
		if err := rows.Scan(&e.ID, &e.RunID, &kind, &e.Subject, &e.Outcome, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Kind = Kind(kind)
		e.Time = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of entries of kind, or of all entries when kind
// is empty.
func (s *Store) Count(ctx context.Context, kind Kind) (int, error) {
	var n int
	var err error
	if kind == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE kind = ?`, string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ Recorder = (*Store)(nil)
