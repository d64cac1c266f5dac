package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a Local data source bound to the provided path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open opens the configured path for reading.
//
// Behavior:
//   - If the context is already canceled at the time of the call, Open
//     returns the context error immediately without touching the filesystem.
//   - Any filesystem error is wrapped with the path for context while still
//     permitting errors.Is checks (e.g. errors.Is(err, os.ErrNotExist)).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	return f, nil
}

// Path returns the bound filesystem path.
func (l *Local) Path() string { return l.path }

// Expand resolves a source spec into one or more local sources. Specs
// containing glob metacharacters are matched with doublestar (so `data/**/*.csv`
// works); plain paths pass through untouched so a missing file still fails at
// open time with a useful error.
func Expand(spec string) ([]*Local, error) {
	if !hasGlobMeta(spec) {
		return []*Local{NewLocal(spec)}, nil
	}

	matches, err := doublestar.FilepathGlob(spec)
	if err != nil {
		return nil, fmt.Errorf("bad source pattern %q: %w", spec, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("source pattern %q matched no files", spec)
	}
	sort.Strings(matches) // deterministic extract order

	out := make([]*Local, len(matches))
	for i, m := range matches {
		out[i] = NewLocal(m)
	}
	return out, nil
}

func hasGlobMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}
