package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists run summaries to MySQL/MariaDB, for deployments
// that already centralize audit trails in a relational database
// rather than scattering a SQLite file per worker.
//
// dsn follows the go-sql-driver/mysql DSN format, e.g.
// "user:password@tcp(127.0.0.1:3306)/deppy?parseTime=true".
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a connection pool against dsn and ensures its
// schema exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open mysql: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_summaries (
			run_id        VARCHAR(64) PRIMARY KEY,
			targets       JSON NOT NULL,
			started_at    DATETIME(6) NOT NULL,
			finished_at   DATETIME(6) NOT NULL,
			node_calls    INT NOT NULL,
			scopes_born   INT NOT NULL,
			succeeded     BOOLEAN NOT NULL,
			failure_error TEXT
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) SaveRun(ctx context.Context, rs RunSummary) error {
	targets, err := json.Marshal(rs.Targets)
	if err != nil {
		return fmt.Errorf("audit: encode targets: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_summaries (run_id, targets, started_at, finished_at, node_calls, scopes_born, succeeded, failure_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			targets=VALUES(targets), started_at=VALUES(started_at), finished_at=VALUES(finished_at),
			node_calls=VALUES(node_calls), scopes_born=VALUES(scopes_born),
			succeeded=VALUES(succeeded), failure_error=VALUES(failure_error)
	`, rs.RunID, string(targets), rs.StartedAt, rs.FinishedAt, rs.NodeCalls, rs.ScopesBorn, rs.Succeeded, rs.FailureError)
	if err != nil {
		return fmt.Errorf("audit: save run: %w", err)
	}
	return nil
}

func (s *MySQLStore) LoadRun(ctx context.Context, runID string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, targets, started_at, finished_at, node_calls, scopes_born, succeeded, failure_error
		FROM run_summaries WHERE run_id = ?
	`, runID)
	return scanRunSummary(row)
}

func (s *MySQLStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
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
