package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db *sql.DB

	stmtRecord *sql.Stmt
	stmtForID  *sql.Stmt
	stmtRecent *sql.Stmt
}

// Open opens the default SQLite history store at path, creating parent
// directories and the schema as needed.
func Open(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("history db path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &sqliteStore{db: db}
	if err := s.initPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.prepare(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) initPragmas(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
);`); err != nil {
		return err
	}
	applied := map[int]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	migs, err := loadMigrations()
	if err != nil {
		return err
	}
	for _, m := range migs {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`,
			m.version, time.Now().Unix()); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

type migration struct {
	version int
	name    string
	sql     string
}

func loadMigrations() ([]migration, error) {
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}
	var migs []migration
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		v, err := strconv.Atoi(strings.SplitN(name, "_", 2)[0])
		if err != nil {
			return nil, fmt.Errorf("migration %s: bad version prefix", name)
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}
		migs = append(migs, migration{version: v, name: name, sql: string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })
	return migs, nil
}

const attemptCols = `id, spec_id, attempt, class, message, detail, pr_number, branch, started_at, finished_at, duration_ms`

func (s *sqliteStore) prepare(ctx context.Context) error {
	pairs := []struct {
		dest **sql.Stmt
		q    string
	}{
		{&s.stmtRecord, `INSERT INTO attempts(spec_id, attempt, class, message, detail, pr_number, branch, started_at, finished_at, duration_ms) VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`},
		{&s.stmtForID, `SELECT ` + attemptCols + ` FROM attempts WHERE spec_id = ? ORDER BY id ASC`},
		{&s.stmtRecent, `SELECT ` + attemptCols + ` FROM attempts ORDER BY id DESC LIMIT ?`},
	}
	for _, p := range pairs {
		st, err := s.db.PrepareContext(ctx, p.q)
		if err != nil {
			return err
		}
		*p.dest = st
	}
	return nil
}

func (s *sqliteStore) RecordAttempt(ctx context.Context, a Attempt) (int64, error) {
	res, err := s.stmtRecord.ExecContext(ctx,
		a.SpecID, a.Attempt, a.Class, a.Message, a.Detail, a.PRNumber, a.Branch,
		a.StartedAt.UnixMilli(), a.FinishedAt.UnixMilli(), a.Duration.Milliseconds())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) AttemptsFor(ctx context.Context, specID string) ([]Attempt, error) {
	rows, err := s.stmtForID.QueryContext(ctx, specID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func (s *sqliteStore) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.stmtRecent.QueryContext(ctx, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func (s *sqliteStore) ClassCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT class, COUNT(*) FROM attempts GROUP BY class`)
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

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	for _, st := range []*sql.Stmt{s.stmtRecord, s.stmtForID, s.stmtRecent} {
		if st != nil {
			_ = st.Close()
		}
	}
	return s.db.Close()
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	var out []Attempt
	for rows.Next() {
		var a Attempt
		var started, finished, durMS int64
		if err := rows.Scan(&a.ID, &a.SpecID, &a.Attempt, &a.Class, &a.Message, &a.Detail,
			&a.PRNumber, &a.Branch, &started, &finished, &durMS); err != nil {
			return nil, err
		}
		a.StartedAt = time.UnixMilli(started).UTC()
		a.FinishedAt = time.UnixMilli(finished).UTC()
		a.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}
