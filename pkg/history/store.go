// Package history persists one row per supervised run in a local SQLite
// database so past starts, exits and stops survive supervisor restarts.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/poucet/maestro/pkg/fault"
	"github.com/poucet/maestro/pkg/procmgr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultLimit is the number of runs Recent returns when limit <= 0
const DefaultLimit = 20

// Run is one persisted spawn or attach
type Run struct {
	RunID     string     `json:"run_id"`
	PID       int        `json:"pid"`
	Mode      string     `json:"mode"`
	Command   string     `json:"command"`
	LogPath   string     `json:"log_path,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Duration is the run's lifetime, measured to now while it is still open
func (r Run) Duration(now time.Time) time.Duration {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Store is a SQLite-backed run history
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the database at path and applies migrations
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; the supervisor records from a single goroutine
	// under its lock anyway.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
		PRAGMA busy_timeout=5000;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Path returns the database file
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RunStarted inserts a new open run
func (s *Store) RunStarted(ctx context.Context, rec procmgr.RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, pid, mode, command, log_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.PID, rec.Mode.String(), rec.Command, rec.LogPath, rec.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RunEnded closes an open run. exitCode is nil when the exit status is
// unknown, as for attached processes.
func (s *Store) RunEnded(ctx context.Context, runID string, endedAt time.Time, exitCode *int, reason string) error {
	var code sql.NullInt64
	if exitCode != nil {
		code = sql.NullInt64{Int64: int64(*exitCode), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs SET ended_at = ?, exit_code = ?, end_reason = ?
		WHERE run_id = ? AND ended_at IS NULL
	`, endedAt.UnixMilli(), code, reason, runID)
	if err != nil {
		return fmt.Errorf("failed to record run end: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return fault.ErrNotFound(fmt.Sprintf("No open run with id %s", runID))
	}
	return nil
}

// Recent returns the latest runs, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, pid, mode, command, log_path, started_at, ended_at, exit_code, end_reason
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run by id
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, pid, mode, command, log_path, started_at, ended_at, exit_code, end_reason
		FROM runs WHERE run_id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.ErrNotFound(fmt.Sprintf("Run not found: %s", runID))
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run       Run
		startedAt int64
		endedAt   sql.NullInt64
		exitCode  sql.NullInt64
	)

	err := sc.Scan(&run.RunID, &run.PID, &run.Mode, &run.Command, &run.LogPath,
		&startedAt, &endedAt, &exitCode, &run.EndReason)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}

	run.StartedAt = time.UnixMilli(startedAt)
	if endedAt.Valid {
		t := time.UnixMilli(endedAt.Int64)
		run.EndedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	return run, nil
}

var _ procmgr.RunRecorder = (*Store)(nil)
