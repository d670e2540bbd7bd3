// Package history persists run summaries in SQLite so past runs stay
// inspectable across process restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bnema/rotavault/internal/domain"
)

// Store records and queries run summaries.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the history database and initializes the
// schema. WAL mode keeps a concurrent history query from blocking a
// recording run.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(2)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_results (
		run_id       TEXT NOT NULL REFERENCES runs(id),
		destination  TEXT NOT NULL,
		status       TEXT NOT NULL,
		materialized TEXT NOT NULL DEFAULT '',
		linked       TEXT NOT NULL DEFAULT '',
		pruned       INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, destination)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores one run summary atomically.
func (s *Store) Record(ctx context.Context, summary domain.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at) VALUES (?, ?, ?)`,
		summary.ID,
		summary.StartedAt.UTC().Format(time.RFC3339Nano),
		summary.FinishedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, res := range summary.Results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_results (run_id, destination, status, materialized, linked, pruned, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			summary.ID, res.Destination, string(res.Status),
			res.Materialized, strings.Join(res.Linked, ","), res.Pruned, res.Error,
		); err != nil {
			return fmt.Errorf("insert result for %s: %w", res.Destination, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Recent returns the most recent run summaries, newest first, results
// attached in destination order.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.RunSummary
	for rows.Next() {
		var summary domain.RunSummary
		var startedStr, finishedStr string
		if err := rows.Scan(&summary.ID, &startedStr, &finishedStr); err != nil {
			return nil, err
		}
		var parseErr error
		summary.StartedAt, parseErr = time.Parse(time.RFC3339Nano, startedStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse started_at for run %s: %w", summary.ID, parseErr)
		}
		summary.FinishedAt, parseErr = time.Parse(time.RFC3339Nano, finishedStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse finished_at for run %s: %w", summary.ID, parseErr)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		results, err := s.resultsFor(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Results = results
	}
	return summaries, nil
}

func (s *Store) resultsFor(ctx context.Context, runID string) ([]domain.DestinationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT destination, status, materialized, linked, pruned, error
		 FROM run_results WHERE run_id = ? ORDER BY destination`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.DestinationResult
	for rows.Next() {
		var res domain.DestinationResult
		var status, linked string
		if err := rows.Scan(&res.Destination, &status, &res.Materialized, &linked, &res.Pruned, &res.Error); err != nil {
			return nil, err
		}
		res.Status = domain.RunStatus(status)
		if linked != "" {
			res.Linked = strings.Split(linked, ",")
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
