// Package history appends a durable, queryable record of every completed
// swarm run to a small SQLite database, independent of the JSON state file
// that tracks only the currently active/resumable run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/swarm/internal/models"
)

// schema creates the single runs table, one row per run id (Record upserts,
// so re-recording a run updates its row). Unlike the teacher's
// learning.Store, this is kept as an inline constant rather than a
// go:embed'd schema.sql: the history ledger has exactly one table and no
// migration history to track, so a separate asset file buys nothing.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	task            TEXT NOT NULL,
	status          TEXT NOT NULL,
	oversight       TEXT,
	issue_number    INTEGER,
	worker_count    INTEGER NOT NULL DEFAULT 0,
	success_count   INTEGER NOT NULL DEFAULT 0,
	total_cost_usd  REAL NOT NULL DEFAULT 0,
	pr_url          TEXT,
	error           TEXT,
	started_at      TEXT NOT NULL,
	completed_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// dbFileName is the ledger's path relative to the repository root.
const dbFileName = ".swarm/history.db"

// Store manages the run history ledger for one repository.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at
// <repoPath>/.swarm/history.db.
func Open(repoPath string) (*Store, error) {
	path := filepath.Join(repoPath, dbFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	return open(path)
}

// OpenAt opens the database at an explicit path, for tests.
func OpenAt(path string) (*Store, error) {
	return open(path)
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends (or, for a re-recorded run id, replaces) one run's ledger
// entry, derived from its final persisted RunState.
func (s *Store) Record(ctx context.Context, run *models.RunState, oversight string, issueNumber int) error {
	workerCount := len(run.Workers)
	successCount := 0
	for _, w := range run.Workers {
		if w.Status == models.WorkerCompleted {
			successCount++
		}
	}

	var issueCol interface{}
	if issueNumber > 0 {
		issueCol = issueNumber
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, task, status, oversight, issue_number, worker_count, success_count, total_cost_usd, pr_url, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			worker_count = excluded.worker_count,
			success_count = excluded.success_count,
			total_cost_usd = excluded.total_cost_usd,
			pr_url = excluded.pr_url,
			error = excluded.error,
			completed_at = excluded.completed_at
	`,
		run.RunID, run.Task, string(run.Status), oversight, issueCol,
		workerCount, successCount, run.TotalCostUSD, run.PRUrl, run.Error,
		run.StartedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// Entry is one row of the run history ledger, as returned by List.
type Entry struct {
	RunID        string
	Task         string
	Status       string
	Oversight    string
	IssueNumber  int
	WorkerCount  int
	SuccessCount int
	TotalCostUSD float64
	PRUrl        string
	Error        string
	StartedAt    string
	CompletedAt  string
}

// List returns the most recent runs, newest first, up to limit (0 means no
// limit).
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT run_id, task, status, oversight, issue_number, worker_count, success_count, total_cost_usd, pr_url, error, started_at, completed_at
		FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var oversight, prURL, errMsg sql.NullString
		var issueNumber sql.NullInt64
		if err := rows.Scan(&e.RunID, &e.Task, &e.Status, &oversight, &issueNumber, &e.WorkerCount, &e.SuccessCount, &e.TotalCostUSD, &prURL, &errMsg, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan run history row: %w", err)
		}
		e.Oversight = oversight.String
		e.PRUrl = prURL.String
		e.Error = errMsg.String
		e.IssueNumber = int(issueNumber.Int64)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns a single run's ledger entry, or nil if runID is unknown.
func (s *Store) Get(ctx context.Context, runID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT run_id, task, status, oversight, issue_number, worker_count, success_count, total_cost_usd, pr_url, error, started_at, completed_at
		FROM runs WHERE run_id = ?`, runID)

	var e Entry
	var oversight, prURL, errMsg sql.NullString
	var issueNumber sql.NullInt64
	err := row.Scan(&e.RunID, &e.Task, &e.Status, &oversight, &issueNumber, &e.WorkerCount, &e.SuccessCount, &e.TotalCostUSD, &prURL, &errMsg, &e.StartedAt, &e.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	e.Oversight = oversight.String
	e.PRUrl = prURL.String
	e.Error = errMsg.String
	e.IssueNumber = int(issueNumber.Int64)
	return &e, nil
}
