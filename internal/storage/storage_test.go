package storage_test

import (
	"context"
	"testing"

	"declpipe/internal/errs"
	"declpipe/internal/schema"
	"declpipe/internal/storage"
	"declpipe/pkg/records"
)

type fakeSink struct {
	wrote int64
}

func (f *fakeSink) Write(_ context.Context, _ schema.Schema, rows []records.Record, _ storage.Mode) (int64, error) {
	f.wrote += int64(len(rows))
	return int64(len(rows)), nil
}

func (f *fakeSink) Close() error { return nil }

func TestRegisterAndNew(t *testing.T) {
	fake := &fakeSink{}
	storage.Register("fake", func(_ context.Context, _ storage.Config) (storage.Sink, error) {
		return fake, nil
	})

	sink, err := storage.New(context.Background(), storage.Config{Format: "fake", Target: "t"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n, err := sink.Write(context.Background(), nil, []records.Record{{"a": 1}}, storage.ModeOverwrite)
	if err != nil || n != 1 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
}

func TestNew_UnknownFormat(t *testing.T) {
	_, err := storage.New(context.Background(), storage.Config{Format: "parquet"})
	if err == nil {
		t.Fatalf("unknown format must fail")
	}
	if errs.KindOf(err) != errs.KindUnsupportedFormat {
		t.Fatalf("kind=%v want %v", errs.KindOf(err), errs.KindUnsupportedFormat)
	}
}

func TestRegister_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate Register must panic")
		}
	}()
	storage.Register("dup", func(_ context.Context, _ storage.Config) (storage.Sink, error) { return nil, nil })
	storage.Register("dup", func(_ context.Context, _ storage.Config) (storage.Sink, error) { return nil, nil })
}
