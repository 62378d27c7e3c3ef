// File: internal/store/store.go

// Package store persists finished run records in PostgreSQL for the history
// listing. The archive is write-only from the agent's point of view: the
// decision loop never reads prior runs.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const sqlCreateRuns = `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		task        TEXT NOT NULL,
		final_state TEXT NOT NULL,
		iterations  INT NOT NULL,
		summary     TEXT NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	);
`

const sqlInsertRun = `
	INSERT INTO runs (id, task, final_state, iterations, summary, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
`

const sqlListRuns = `
	SELECT id, task, final_state, iterations, summary, started_at, finished_at
	FROM runs
	ORDER BY finished_at DESC
	LIMIT $1;
`

// Store is the PostgreSQL implementation of schemas.RunStore.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.RunStore = (*Store)(nil)

// Open connects a pool for the DSN and runs New over it.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New verifies the connection and ensures the runs table exists.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateRuns); err != nil {
		return nil, fmt.Errorf("failed to ensure runs table: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveRun archives one finished run. Timestamps are normalized to UTC before
// insertion so listings sort consistently across host timezones.
func (s *Store) SaveRun(ctx context.Context, rec schemas.RunRecord) error {
	tag, err := s.pool.Exec(ctx, sqlInsertRun,
		rec.ID, rec.Task, string(rec.FinalState), rec.Iterations, rec.Summary,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("unexpected rows affected inserting run %s: %d", rec.ID, tag.RowsAffected())
	}

	s.log.Debug("Run archived",
		zap.String("run_id", rec.ID),
		zap.String("final_state", string(rec.FinalState)))
	return nil
}

// ListRuns returns the most recently finished runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []schemas.RunRecord
	for rows.Next() {
		var rec schemas.RunRecord
		var state string
		if err := rows.Scan(&rec.ID, &rec.Task, &state, &rec.Iterations,
			&rec.Summary, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		rec.FinalState = schemas.RunState(state)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
