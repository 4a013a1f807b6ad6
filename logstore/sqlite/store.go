// Package sqlite persists runs and log entries in an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chronosim/chronosim/logbook"
	"github.com/chronosim/chronosim/logstore"
	"github.com/chronosim/chronosim/types"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultLimit       = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
}

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithoutWAL() Option {
	return func(s *Store) { s.enableWAL = false }
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run *logstore.Run) error {
	if run == nil || strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	const q = `
INSERT INTO runs (id, agent_id, task, state, final_answer, iterations, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  agent_id=excluded.agent_id,
  task=excluded.task,
  state=excluded.state,
  final_answer=excluded.final_answer,
  iterations=excluded.iterations,
  updated_at=excluded.updated_at;
`
	_, err := s.db.ExecContext(ctx, q,
		run.ID,
		run.AgentID,
		run.Task,
		string(run.State),
		run.FinalAnswer,
		run.Iterations,
		run.CreatedAt.Format(time.RFC3339Nano),
		run.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *Store) LoadRun(ctx context.Context, id string) (*logstore.Run, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	const q = `
SELECT id, agent_id, task, state, final_answer, iterations, created_at, updated_at
FROM runs WHERE id = ?;
`
	run, err := scanRun(s.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, logstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]*logstore.Run, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	const q = `
SELECT id, agent_id, task, state, final_answer, iterations, created_at, updated_at
FROM runs ORDER BY updated_at DESC LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*logstore.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *Store) AppendEntries(ctx context.Context, runID string, entries ...logbook.Entry) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM entries WHERE run_id = ?;`, runID,
	).Scan(&next); err != nil {
		return fmt.Errorf("failed to read entry seq: %w", err)
	}

	const q = `INSERT INTO entries (run_id, seq, log_type, payload) VALUES (?, ?, ?, ?);`
	for _, e := range entries {
		payload, err := logbook.Encode(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, q, runID, next, string(e.Type()), string(payload)); err != nil {
			return fmt.Errorf("failed to insert entry: %w", err)
		}
		next++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entries: %w", err)
	}
	return nil
}

func (s *Store) LoadEntries(ctx context.Context, runID string) ([]logbook.Entry, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM entries WHERE run_id = ? ORDER BY seq ASC;`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	defer rows.Close()

	var out []logbook.Entry
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entry, err := logbook.Decode([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*logstore.Run, error) {
	var (
		run                  logstore.Run
		state                string
		createdAt, updatedAt string
	)
	if err := row.Scan(&run.ID, &run.AgentID, &run.Task, &state, &run.FinalAnswer, &run.Iterations, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	run.State = types.RunningState(state)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		run.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		run.UpdatedAt = t
	}
	return &run, nil
}
