package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocal_Open(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	if err := os.WriteFile(path, []byte("a\n1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	rc, err := NewLocal(path).Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rc.Close()

	_, err = NewLocal(filepath.Join(dir, "missing.csv")).Open(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestLocal_OpenCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal("whatever").Open(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExpand_Glob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "skip.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	srcs, err := Expand(filepath.Join(dir, "*.csv"))
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(srcs) != 2 {
		t.Fatalf("matches=%d want 2", len(srcs))
	}
	// Deterministic (sorted) order.
	if filepath.Base(srcs[0].Path()) != "a.csv" || filepath.Base(srcs[1].Path()) != "b.csv" {
		t.Fatalf("order wrong: %s, %s", srcs[0].Path(), srcs[1].Path())
	}

	if _, err := Expand(filepath.Join(dir, "*.parquet")); err == nil {
		t.Fatalf("no matches must fail")
	}

	// A plain path passes through even when the file is absent.
	srcs, err = Expand(filepath.Join(dir, "later.csv"))
	if err != nil || len(srcs) != 1 {
		t.Fatalf("plain path expand: %v %d", err, len(srcs))
	}
}
