// Package postgres is the PostgreSQL history store, for deployments where
// several operators share one attempt log.
package postgres

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sovrium/sovrium-sub014/internal/history"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
  id BIGSERIAL PRIMARY KEY,
  spec_id TEXT NOT NULL,
  attempt INTEGER NOT NULL,
  class TEXT NOT NULL,
  message TEXT NOT NULL DEFAULT '',
  detail TEXT NOT NULL DEFAULT '',
  pr_number INTEGER NOT NULL DEFAULT 0,
  branch TEXT NOT NULL DEFAULT '',
  started_at TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ NOT NULL,
  duration_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_spec ON attempts(spec_id, id);
CREATE INDEX IF NOT EXISTS idx_attempts_class ON attempts(class);
`

// Store is the PostgreSQL implementation of history.Store.
type Store struct {
	Pool *pgxpool.Pool
}

// Open opens a connection pool and ensures the schema. dsn may be empty to
// use DATABASE_URL.
func Open(dsn string) (history.Store, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(context.Background(), schema); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) RecordAttempt(ctx context.Context, a history.Attempt) (int64, error) {
	var id int64
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO attempts(spec_id, attempt, class, message, detail, pr_number, branch, started_at, finished_at, duration_ms)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		a.SpecID, a.Attempt, a.Class, a.Message, a.Detail, a.PRNumber, a.Branch,
		a.StartedAt, a.FinishedAt, a.Duration.Milliseconds()).Scan(&id)
	return id, err
}

const attemptCols = `id, spec_id, attempt, class, message, detail, pr_number, branch, started_at, finished_at, duration_ms`

func (s *Store) AttemptsFor(ctx context.Context, specID string) ([]history.Attempt, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+attemptCols+` FROM attempts WHERE spec_id = $1 ORDER BY id ASC`, specID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scan(rows)
}

func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]history.Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT `+attemptCols+` FROM attempts ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scan(rows)
}

func (s *Store) ClassCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `SELECT class, COUNT(*) FROM attempts GROUP BY class`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		out[class] = n
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	s.Pool.Close()
	return nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scan(rows pgxRows) ([]history.Attempt, error) {
	var out []history.Attempt
	for rows.Next() {
		var a history.Attempt
		var durMS int64
		if err := rows.Scan(&a.ID, &a.SpecID, &a.Attempt, &a.Class, &a.Message, &a.Detail,
			&a.PRNumber, &a.Branch, &a.StartedAt, &a.FinishedAt, &durMS); err != nil {
			return nil, err
		}
		a.StartedAt = a.StartedAt.UTC()
		a.FinishedAt = a.FinishedAt.UTC()
		a.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ history.Store = (*Store)(nil)
