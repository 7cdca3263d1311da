// Package history persists supervised run records in SQLite so past builds
// can be inspected after their job records are cleaned up.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildsafe/internal/job"
)

// DefaultDBName is the history database file within the data dir.
const DefaultDBName = "history.db"

// Run is one supervised build as recorded in the history store.
type Run struct {
	JobID      string
	Workdir    string
	Command    string
	State      string
	PID        int
	ExitCode   *int
	StartedAt  time.Time
	EndedAt    time.Time
	DurationMS int64
	Artifacts  int
	Commit     string
	Reason     string
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the history database at dbPath.
// Use ":memory:" for an in-memory database.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		job_id TEXT PRIMARY KEY,
		workdir TEXT NOT NULL,
		command TEXT NOT NULL,
		state TEXT NOT NULL,
		pid INTEGER NOT NULL,
		exit_code INTEGER,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		duration_ms INTEGER NOT NULL,
		artifacts INTEGER NOT NULL,
		commit_hash TEXT,
		reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record upserts the run row for a job. Called once when the build launches
// and again when it reaches a terminal state, so the row always reflects the
// latest known state.
func (s *Store) Record(ctx context.Context, j *job.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exitCode sql.NullInt64
	if j.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*j.ExitCode), Valid: true}
	}
	var endedAt sql.NullInt64
	if !j.EndedAt.IsZero() {
		endedAt = sql.NullInt64{Int64: j.EndedAt.Unix(), Valid: true}
	}
	started := j.StartedAt
	if started.IsZero() {
		started = j.CreatedAt
	}
	commit := ""
	if j.Git != nil {
		commit = j.Git.Commit
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs
		 (job_id, workdir, command, state, pid, exit_code, started_at, ended_at, duration_ms, artifacts, commit_hash, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Workdir, j.CommandLine(), string(j.State), j.PID, exitCode,
		started.Unix(), endedAt, j.Duration().Milliseconds(), j.ArtifactsAfter, commit, j.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Recent returns the newest runs, optionally restricted to unsuccessful
// terminal states.
func (s *Store) Recent(ctx context.Context, limit int, onlyFailed bool) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT job_id, workdir, command, state, pid, exit_code, started_at, ended_at, duration_ms, artifacts, commit_hash, reason
	          FROM runs`
	if onlyFailed {
		query += ` WHERE state IN ('failed', 'timed_out', 'unknown')`
	}
	query += ` ORDER BY started_at DESC, job_id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// Get returns one run by job ID, or nil when unknown.
func (s *Store) Get(ctx context.Context, jobID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, workdir, command, state, pid, exit_code, started_at, ended_at, duration_ms, artifacts, commit_hash, reason
		 FROM runs WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var runs []Run
	for rows.Next() {
		var r Run
		var exitCode, endedAt sql.NullInt64
		var startedUnix int64
		var commit, reason sql.NullString

		err := rows.Scan(&r.JobID, &r.Workdir, &r.Command, &r.State, &r.PID,
			&exitCode, &startedUnix, &endedAt, &r.DurationMS, &r.Artifacts, &commit, &reason)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		r.StartedAt = time.Unix(startedUnix, 0)
		if endedAt.Valid {
			r.EndedAt = time.Unix(endedAt.Int64, 0)
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			r.ExitCode = &code
		}
		r.Commit = commit.String
		r.Reason = reason.String

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
