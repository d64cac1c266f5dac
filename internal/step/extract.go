package step

import (
	"context"
	"io"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/schema"
	"declpipe/internal/source"
	"declpipe/pkg/records"
)

// Extractor reads an external source into the registry. The target dataset
// is registered and materialized only after every source file has been read
// successfully; a failed read leaves the registry untouched.
type Extractor struct{}

func (e *Extractor) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	spec := def.Params.String("source", "")
	format := def.Params.String("format", "csv")

	reader, err := newReader(format, def.Params)
	if err != nil {
		return 0, err
	}

	srcs, err := source.Expand(spec)
	if err != nil {
		return 0, errs.Wrap(errs.KindIO, err, "extract %s: expand source", def.Name)
	}

	var (
		sch  schema.Schema
		rows []records.Record
	)
	for _, src := range srcs {
		fileSch, fileRows, err := readOne(ctx, src, reader)
		if err != nil {
			return 0, errs.Wrap(errs.KindIO, err, "extract %s: read %s", def.Name, src.Path())
		}
		if sch == nil {
			sch = fileSch
		} else if diff := sch.Compare(fileSch.Names()); !diff.Empty() {
			return 0, errs.New(errs.KindSchemaMismatch,
				"extract %s: %s columns diverge from first file: missing=%v extra=%v",
				def.Name, src.Path(), diff.Missing, diff.Extra)
		}
		rows = append(rows, fileRows...)
	}

	return materialize(reg, def, sch, rows)
}

func readOne(ctx context.Context, src source.Source, reader source.Reader) (schema.Schema, []records.Record, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	return reader.Read(contextReader{ctx: ctx, r: rc})
}

// newReader maps the extract format to its reader. Formats outside the
// closed set fail with an unsupported-format error.
func newReader(format string, params config.Options) (source.Reader, error) {
	switch format {
	case "csv":
		return source.NewCSVReader(source.CSVOptions{
			HasHeader: params.Bool("has_header", true),
			Comma:     params.Rune("delimiter", ','),
			TrimSpace: params.Bool("trim_space", false),
			HeaderMap: params.StringMap("header_map"),
			Encoding:  params.String("encoding", ""),
		}), nil
	case "json":
		return source.NewJSONReader(source.JSONOptions{
			AllowArrays: params.Bool("allow_arrays", false),
		}), nil
	default:
		return nil, errs.New(errs.KindUnsupportedFormat, "extract format %q not supported (csv, json)", format)
	}
}

// contextReader aborts an in-progress read when the step's deadline expires,
// so a slow source cannot outlive its timeout.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
