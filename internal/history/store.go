// Package history persists the outcome of every executeScript call in a
// SQLite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrRunNotFound is returned by Get for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Run is one recorded executeScript outcome. Warnings and Outputs hold JSON.
type Run struct {
	ID         string `db:"id" json:"id"`
	ScriptID   string `db:"script_id" json:"scriptId"`
	TabID      string `db:"tab_id" json:"tabId,omitempty"`
	TargetURL  string `db:"target_url" json:"targetUrl,omitempty"`
	Status     string `db:"status" json:"status"`
	StartedAt  int64  `db:"started_at" json:"startedAt"` // unix ms
	DurationMs int64  `db:"duration_ms" json:"durationMs"`
	StepIndex  int    `db:"step_index" json:"stepIndex"` // -1 when no step failed
	StepPath   string `db:"step_path" json:"stepPath,omitempty"`
	StepType   string `db:"step_type" json:"stepType,omitempty"`
	ErrorKind  string `db:"error_kind" json:"errorKind,omitempty"`
	Error      string `db:"error" json:"error,omitempty"`
	Warnings   string `db:"warnings" json:"warnings,omitempty"`
	Outputs    string `db:"outputs" json:"outputs,omitempty"`
	Screenshot string `db:"screenshot" json:"screenshot,omitempty"`
}

// Started returns StartedAt as a time.
func (r Run) Started() time.Time {
	return time.UnixMilli(r.StartedAt)
}

// Store is the SQLite-backed run history.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the history database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	if err := migrateUp(dsn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	slog.Debug("history store opened", "path", path)
	return &Store{db: db}, nil
}

// migrateUp runs the embedded migrations on a dedicated handle; the sqlite
// migrate driver closes its database on Close.
func migrateUp(dsn string) error {
	raw, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		raw.Close()
		return err
	}
	drv, err := sqlite.WithInstance(raw, &sqlite.Config{})
	if err != nil {
		raw.Close()
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		raw.Close()
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a run. Recording the same id twice replaces the entry.
func (s *Store) Record(ctx context.Context, r Run) error {
	if r.Warnings == "" {
		r.Warnings = "[]"
	}
	if r.Outputs == "" {
		r.Outputs = "{}"
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, script_id, tab_id, target_url, status, started_at, duration_ms,
			step_index, step_path, step_type, error_kind, error, warnings, outputs, screenshot
		) VALUES (
			:id, :script_id, :tab_id, :target_url, :status, :started_at, :duration_ms,
			:step_index, :step_path, :step_type, :error_kind, :error, :warnings, :outputs, :screenshot
		)`, r)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

const selectRuns = `SELECT id, script_id, tab_id, target_url, status, started_at, duration_ms,
	step_index, step_path, step_type, error_kind, error, warnings, outputs, screenshot FROM runs`

// List returns the most recent runs first. An empty scriptID lists all
// scripts; limit <= 0 means 20.
func (s *Store) List(ctx context.Context, scriptID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	var err error
	if scriptID == "" {
		err = s.db.SelectContext(ctx, &runs, selectRuns+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &runs, selectRuns+` WHERE script_id = ? ORDER BY started_at DESC, id LIMIT ?`, scriptID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Get returns one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var r Run
	err := s.db.GetContext(ctx, &r, selectRuns+` WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}
