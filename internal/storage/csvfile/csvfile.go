// Package csvfile implements a delimited-text storage backend.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"declpipe/internal/config"
	"declpipe/internal/schema"
	"declpipe/internal/storage"
	"declpipe/pkg/records"
)

func init() {
	storage.Register("csv", func(_ context.Context, cfg storage.Config) (storage.Sink, error) {
		return newSink(cfg)
	})
}

type sink struct {
	path   string
	comma  rune
	header bool
}

func newSink(cfg storage.Config) (*sink, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("csv sink: target path required")
	}
	opts := config.Options(cfg.Params)
	return &sink{
		path:   cfg.Target,
		comma:  opts.Rune("delimiter", ','),
		header: opts.Bool("header", true),
	}, nil
}

// Write renders rows in schema column order. Overwrite truncates the file;
// append adds rows and only writes the header when the file was empty.
func (s *sink) Write(ctx context.Context, sch schema.Schema, rows []records.Record, mode storage.Mode) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if mode == storage.ModeAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("csv sink: open %s: %w", s.path, err)
	}
	defer f.Close()

	writeHeader := s.header
	if mode == storage.ModeAppend {
		info, err := f.Stat()
		if err != nil {
			return 0, fmt.Errorf("csv sink: stat %s: %w", s.path, err)
		}
		writeHeader = s.header && info.Size() == 0
	}

	w := csv.NewWriter(f)
	w.Comma = s.comma

	if writeHeader {
		if err := w.Write(sch.Names()); err != nil {
			return 0, fmt.Errorf("csv sink: write header: %w", err)
		}
	}

	fields := make([]string, len(sch))
	for _, rec := range rows {
		for i, col := range sch {
			fields[i] = formatValue(rec[col.Name])
		}
		if err := w.Write(fields); err != nil {
			return 0, fmt.Errorf("csv sink: write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("csv sink: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("csv sink: sync %s: %w", s.path, err)
	}
	return int64(len(rows)), nil
}

func (s *sink) Close() error { return nil }

// formatValue renders a cell deterministically so repeated runs produce
// byte-identical files. Nil renders as the empty field.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
