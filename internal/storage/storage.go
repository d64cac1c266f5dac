// Package storage provides pluggable sinks for materialized datasets.
// Backends register themselves by format kind; callers construct a sink
// through New without knowing the concrete implementation.
package storage

import (
	"context"
	"sort"
	"sync"

	"declpipe/internal/errs"
	"declpipe/internal/schema"
	"declpipe/pkg/records"
)

// Mode selects how a sink treats pre-existing data at the target.
type Mode string

const (
	// ModeOverwrite replaces the target's contents.
	ModeOverwrite Mode = "overwrite"
	// ModeAppend adds rows after the target's existing contents.
	ModeAppend Mode = "append"
)

// Config carries everything a backend needs to open its target.
type Config struct {
	// Format is the registered backend kind ("csv", "sqlite", "postgres").
	Format string
	// Target is the destination: a file path for file backends, a table
	// name for database backends.
	Target string
	// DSN is the database connection string. Ignored by file backends.
	DSN string
	// Params holds backend-specific options (delimiter, header, ...).
	Params map[string]any
}

// Sink writes a dataset to its destination. Write is atomic per call as far
// as the backend allows: database sinks write inside a transaction, file
// sinks write whole files.
type Sink interface {
	// Write stores the rows under the given schema and returns the number
	// of rows written.
	Write(ctx context.Context, sch schema.Schema, rows []records.Record, mode Mode) (int64, error)
	// Close releases the sink's resources.
	Close() error
}

// Factory builds a Sink from its configuration.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs a factory under the given format kind. Backends call it
// from init; a duplicate kind panics because it is a programming error.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("storage: duplicate backend " + kind)
	}
	factories[kind] = f
}

// New constructs a sink for cfg.Format. An unregistered format reports an
// unsupported-format error so the runner can fail the step cleanly.
func New(ctx context.Context, cfg Config) (Sink, error) {
	mu.RLock()
	f, ok := factories[cfg.Format]
	mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.KindUnsupportedFormat, "storage: no backend registered for format %q (have %v)", cfg.Format, ListKinds())
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered format kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
