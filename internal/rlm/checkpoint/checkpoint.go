// Package checkpoint provides durable persistence for a REPL session's
// state, keyed by task ID. It is supplemental to the in-memory
// overlay/base snapshot model the REPL session itself already
// implements (repl.Session.Snapshot/Restore) — the in-memory model
// remains the primary turn-atomicity mechanism; this store only lets a
// task survive a process restart.
package checkpoint

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ReplState is the opaque snapshot a repl.Session produces via
// Snapshot() and accepts back via Restore(); the checkpoint store never
// interprets it, only round-trips it.
type ReplState = json.RawMessage

// Store is a sqlite-backed checkpoint table, one row per task.
type Store struct {
	db *sql.DB
}

// Open creates or opens the sqlite database at dsn and migrates it to
// the latest schema. dsn is a modernc.org/sqlite data source, e.g.
// "file:checkpoints.db" or ":memory:".
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate checkpoint db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the given task's state, overwriting any prior checkpoint
// for the same task ID.
func (s *Store) Save(ctx context.Context, taskID string, state ReplState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (task_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, taskID, []byte(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint for task %q: %w", taskID, err)
	}
	return nil
}

// Load returns the most recently saved state for taskID. The bool
// return is false (with a nil error) when no checkpoint exists for
// that task.
func (s *Store) Load(ctx context.Context, taskID string) (ReplState, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT state FROM checkpoints WHERE task_id = ?`, taskID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load checkpoint for task %q: %w", taskID, err)
	}
	return ReplState(raw), true, nil
}

// Delete removes any checkpoint for taskID. It is not an error if none
// exists.
func (s *Store) Delete(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE task_id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("delete checkpoint for task %q: %w", taskID, err)
	}
	return nil
}
