// Package sqlite implements a storage backend on an embedded SQLite
// database via the cgo-free modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"declpipe/internal/schema"
	"declpipe/internal/storage"
	"declpipe/pkg/records"
)

func init() {
	storage.Register("sqlite", func(_ context.Context, cfg storage.Config) (storage.Sink, error) {
		return newSink(cfg)
	})
}

type sink struct {
	db    *sql.DB
	table string
}

func newSink(cfg storage.Config) (*sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlite sink: dsn required")
	}
	if cfg.Target == "" {
		return nil, fmt.Errorf("sqlite sink: target table required")
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open %s: %w", cfg.DSN, err)
	}
	// The driver serializes writes; more connections just contend.
	db.SetMaxOpenConns(1)
	return &sink{db: db, table: cfg.Target}, nil
}

// Write creates the table when needed and inserts all rows in a single
// transaction. Overwrite drops and recreates the table first so repeated
// runs land on identical state.
func (s *sink) Write(ctx context.Context, sch schema.Schema, rows []records.Record, mode storage.Mode) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite sink: begin: %w", err)
	}
	defer tx.Rollback()

	if mode == storage.ModeOverwrite {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(s.table)); err != nil {
			return 0, fmt.Errorf("sqlite sink: drop %s: %w", s.table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, createStmt(s.table, sch)); err != nil {
		return 0, fmt.Errorf("sqlite sink: create %s: %w", s.table, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertStmt(s.table, sch))
	if err != nil {
		return 0, fmt.Errorf("sqlite sink: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(sch))
	for _, rec := range rows {
		for i, col := range sch {
			args[i] = rec[col.Name]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("sqlite sink: insert into %s: %w", s.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite sink: commit: %w", err)
	}
	return int64(len(rows)), nil
}

func (s *sink) Close() error { return s.db.Close() }

func createStmt(table string, sch schema.Schema) string {
	cols := make([]string, len(sch))
	for i, c := range sch {
		cols[i] = quoteIdent(c.Name) + " " + sqliteType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(cols, ", "))
}

func insertStmt(table string, sch schema.Schema) string {
	cols := make([]string, len(sch))
	marks := make([]string, len(sch))
	for i, c := range sch {
		cols[i] = quoteIdent(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// sqliteType maps inferred column kinds to SQLite affinities. Booleans are
// stored as INTEGER 0/1, which database/sql round-trips.
func sqliteType(kind string) string {
	switch kind {
	case "int", "bool":
		return "INTEGER"
	case "float":
		return "REAL"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
