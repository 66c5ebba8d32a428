package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// Run statuses as stored in the runs table.
const (
	RunDone   = "done"
	RunFailed = "failed"
)

// StateDB wraps the SQLite run history.
// Safe for concurrent use within one process; several workers may write at
// once from separate processes via WAL mode + busy timeout.
type StateDB struct {
	db *sql.DB
}

// RunRow is one finished summarizer run.
type RunRow struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Cwd          string    `json:"cwd"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	DurationMS   int64     `json:"duration_ms"`
	ExitCode     int       `json:"exit_code"`
	Error        string    `json:"error,omitempty"`
	UserSummary  string    `json:"user_summary,omitempty"`
	AgentSummary string    `json:"agent_summary,omitempty"`
	Raw          string    `json:"raw,omitempty"`
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them. Busy
	// timeout comes first: switching to WAL needs a lock another worker may
	// hold.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: ping: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for tests.
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id            TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			cwd           TEXT NOT NULL DEFAULT '',
			status        TEXT NOT NULL,
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			duration_ms   INTEGER NOT NULL DEFAULT 0,
			exit_code     INTEGER NOT NULL DEFAULT 0,
			error         TEXT NOT NULL DEFAULT '',
			user_summary  TEXT NOT NULL DEFAULT '',
			agent_summary TEXT NOT NULL DEFAULT '',
			raw           TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("statedb: create runs: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_session ON runs (session_id, finished_at)
	`); err != nil {
		return fmt.Errorf("statedb: create runs index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, strconv.Itoa(SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Runs ---

// RecordRun inserts a run. An empty ID is filled with a new UUID and
// returned on the row.
func (s *StateDB) RecordRun(run *RunRow) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.DurationMS == 0 && !run.StartedAt.IsZero() && run.FinishedAt.After(run.StartedAt) {
		run.DurationMS = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}

	_, err := s.db.Exec(`
		INSERT INTO runs (
			id, session_id, cwd, status, started_at, finished_at,
			duration_ms, exit_code, error, user_summary, agent_summary, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.SessionID, run.Cwd, run.Status,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.DurationMS, run.ExitCode, run.Error,
		run.UserSummary, run.AgentSummary, run.Raw,
	)
	if err != nil {
		return fmt.Errorf("statedb: record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. An empty sessionID lists all
// sessions; limit <= 0 means no limit.
func (s *StateDB) ListRuns(sessionID string, limit int) ([]*RunRow, error) {
	query := `
		SELECT id, session_id, cwd, status, started_at, finished_at,
		       duration_ms, exit_code, error, user_summary, agent_summary, raw
		FROM runs`
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY finished_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("statedb: list runs: %w", err)
	}
	defer rows.Close()

	var result []*RunRow
	for rows.Next() {
		r := &RunRow{}
		var started, finished int64
		if err := rows.Scan(
			&r.ID, &r.SessionID, &r.Cwd, &r.Status, &started, &finished,
			&r.DurationMS, &r.ExitCode, &r.Error, &r.UserSummary, &r.AgentSummary, &r.Raw,
		); err != nil {
			return nil, fmt.Errorf("statedb: scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		result = append(result, r)
	}
	return result, rows.Err()
}

// PruneRuns deletes runs that finished before cutoff and returns how many
// were removed.
func (s *StateDB) PruneRuns(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM runs WHERE finished_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("statedb: prune runs: %w", err)
	}
	return res.RowsAffected()
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}
