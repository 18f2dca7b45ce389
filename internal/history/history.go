// Package history persists run summaries to a local SQLite database so
// regressions can be compared across firmware builds.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iokuper/bmcqa/internal/harness"
)

// Store wraps the history database connection.
type Store struct {
	conn *sql.DB
}

// Open opens (and creates if needed) the history database.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	s := &Store{conn: conn}
	if err := s.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			host TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			tester TEXT NOT NULL,
			check_name TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			message TEXT,
			error_detail TEXT,
			timestamp DATETIME NOT NULL,
			duration_ms INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_host ON runs(host)`,
		`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_results_tester ON results(tester)`,
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if _, err := tx.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return tx.Commit()
}

// SaveSummary stores one run and all its results atomically.
func (s *Store) SaveSummary(ctx context.Context, sum *harness.Summary) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, host, started_at, duration_ms, passed, failed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sum.RunID, sum.Host, sum.StartedAt, sum.Duration.Milliseconds(),
		sum.Passed(), sum.Failed())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, r := range sum.Results {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO results (run_id, tester, check_name, success, message, error_detail, timestamp, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, r.Tester, r.Name, r.Success, r.Message, r.ErrorDetail,
			r.Timestamp, r.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}
	return tx.Commit()
}

// RunRecord is one row of run history.
type RunRecord struct {
	ID        string
	Host      string
	StartedAt time.Time
	Duration  time.Duration
	Passed    int
	Failed    int
}

// RecentRuns returns the most recent runs for a host, newest first. An
// empty host matches all hosts.
func (s *Store) RecentRuns(ctx context.Context, host string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, host, started_at, duration_ms, passed, failed FROM runs`
	args := []any{}
	if host != "" {
		query += ` WHERE host = ?`
		args = append(args, host)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var durMs int64
		if err := rows.Scan(&r.ID, &r.Host, &r.StartedAt, &durMs, &r.Passed, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailuresFor returns the failed results of one run.
func (s *Store) FailuresFor(ctx context.Context, runID string) ([]harness.Result, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT tester, check_name, message, error_detail, timestamp, duration_ms
		 FROM results WHERE run_id = ? AND success = 0 ORDER BY timestamp`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []harness.Result
	for rows.Next() {
		var r harness.Result
		var durMs int64
		if err := rows.Scan(&r.Tester, &r.Name, &r.Message, &r.ErrorDetail, &r.Timestamp, &durMs); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
