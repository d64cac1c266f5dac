// Package source contains the extract-side collaborators: locations data is
// read from, and format readers that turn raw bytes into a schema plus rows.
// Extract handlers consume both through narrow interfaces so tests can swap
// in in-memory fakes.
package source

import (
	"context"
	"io"

	"declpipe/internal/schema"
	"declpipe/pkg/records"
)

// Source opens an external location for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Reader decodes one stream into an ordered schema and its rows.
type Reader interface {
	Read(r io.Reader) (schema.Schema, []records.Record, error)
}
