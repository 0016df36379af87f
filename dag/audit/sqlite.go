package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists run summaries to a single-file SQLite
// database — zero setup, fine for a CLI tool or a single-process
// service that still wants its audit trail to survive a restart.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at
// path and ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_summaries (
			run_id        TEXT PRIMARY KEY,
			targets       TEXT NOT NULL,
			started_at    DATETIME NOT NULL,
			finished_at   DATETIME NOT NULL,
			node_calls    INTEGER NOT NULL,
			scopes_born   INTEGER NOT NULL,
			succeeded     INTEGER NOT NULL,
			failure_error TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveRun(ctx context.Context, rs RunSummary) error {
	targets, err := json.Marshal(rs.Targets)
	if err != nil {
		return fmt.Errorf("audit: encode targets: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_summaries (run_id, targets, started_at, finished_at, node_calls, scopes_born, succeeded, failure_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			targets=excluded.targets, started_at=excluded.started_at, finished_at=excluded.finished_at,
			node_calls=excluded.node_calls, scopes_born=excluded.scopes_born,
			succeeded=excluded.succeeded, failure_error=excluded.failure_error
	`, rs.RunID, string(targets), rs.StartedAt, rs.FinishedAt, rs.NodeCalls, rs.ScopesBorn, rs.Succeeded, rs.FailureError)
	if err != nil {
		return fmt.Errorf("audit: save run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadRun(ctx context.Context, runID string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, targets, started_at, finished_at, node_calls, scopes_born, succeeded, failure_error
		FROM run_summaries WHERE run_id = ?
	`, runID)
	return scanRunSummary(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, targets, started_at, finished_at, node_calls, scopes_born, succeeded, failure_error
		FROM run_summaries ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		rs, err := scanRunSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunSummary(row rowScanner) (RunSummary, error) {
	var (
		rs         RunSummary
		targets    string
		failureErr sql.NullString
	)
	if err := row.Scan(&rs.RunID, &targets, &rs.StartedAt, &rs.FinishedAt, &rs.NodeCalls, &rs.ScopesBorn, &rs.Succeeded, &failureErr); err != nil {
		if err == sql.ErrNoRows {
			return RunSummary{}, ErrNotFound
		}
		return RunSummary{}, fmt.Errorf("audit: scan run: %w", err)
	}
	if err := json.Unmarshal([]byte(targets), &rs.Targets); err != nil {
		return RunSummary{}, fmt.Errorf("audit: decode targets: %w", err)
	}
	rs.FailureError = failureErr.String
	return rs, nil
}
