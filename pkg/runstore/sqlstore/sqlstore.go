// Copyright Open Responses Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlstore implements runstore.Store on database/sql for SQLite
// (modernc.org/sqlite, no cgo) and PostgreSQL (pgx).
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/leseb/websearch-gw/pkg/runstore"
)

func init() {
	runstore.Providers.Register("sqlite", func(ctx context.Context, params map[string]string) (runstore.Store, error) {
		return Open(ctx, SQLite, params["dsn"])
	})
	runstore.Providers.Register("postgres", func(ctx context.Context, params map[string]string) (runstore.Store, error) {
		return Open(ctx, Postgres, params["dsn"])
	})
}

// Dialect captures the differences between supported databases.
type Dialect struct {
	Name       string
	driver     string
	numbered   bool // $1 placeholders instead of ?
	createStmt []string
}

var (
	// SQLite stores runs in a local database file.
	SQLite = Dialect{
		Name:   "sqlite",
		driver: "sqlite",
		createStmt: []string{
			`CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				model TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				payload TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		},
	}

	// Postgres stores runs in a PostgreSQL database.
	Postgres = Dialect{
		Name:     "postgres",
		driver:   "pgx",
		numbered: true,
		createStmt: []string{
			`CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				model TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL,
				payload TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		},
	}
)

// bind rewrites ? placeholders for dialects that number them.
func (d Dialect) bind(query string) string {
	if !d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// compile-time check
var _ runstore.Store = (*Store)(nil)

// Store is a database/sql-backed run store.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and creates the schema if needed.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s run store: dsn is required", dialect.Name)
	}

	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", dialect.Name, err)
	}
	if dialect.driver == "sqlite" {
		// A single connection avoids SQLITE_BUSY between writers.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s ping: %w", dialect.Name, err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	for _, stmt := range s.dialect.createStmt {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s create tables: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// SaveRun inserts or replaces a run
func (s *Store) SaveRun(ctx context.Context, run *runstore.Run) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.dialect.bind(`
		INSERT INTO runs (id, model, status, created_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			model = excluded.model,
			status = excluded.status,
			created_at = excluded.created_at,
			payload = excluded.payload`),
		run.ID, run.Model, run.Status, run.CreatedAt.UnixNano(), string(payload))
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(ctx context.Context, runID string) (*runstore.Run, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.dialect.bind(`SELECT payload FROM runs WHERE id = ?`), runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, runstore.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return decodeRun(payload)
}

// ListRuns returns up to limit runs, newest first
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*runstore.Run, error) {
	query := `SELECT payload FROM runs ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.bind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*runstore.Run
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run, err := decodeRun(payload)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func decodeRun(payload string) (*runstore.Run, error) {
	var run runstore.Run
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &run, nil
}
