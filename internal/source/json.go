package source

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"declpipe/internal/schema"
	"declpipe/pkg/records"
)

// JSONOptions configures the JSON reader.
type JSONOptions struct {
	// AllowArrays accepts a top-level JSON array of objects in addition to
	// the default newline-delimited stream of objects (NDJSON).
	AllowArrays bool
}

// JSONReader decodes a stream of JSON objects into rows. The schema is the
// union of object keys (sorted within each object, objects in input order);
// numbers become int64 when integral, float64 otherwise.
type JSONReader struct{ opt JSONOptions }

// NewJSONReader constructs a JSONReader with the provided options.
func NewJSONReader(opt JSONOptions) *JSONReader { return &JSONReader{opt: opt} }

// Read decodes the full stream. Non-object top-level values are rejected,
// except a single array of objects when AllowArrays is set.
func (jr *JSONReader) Read(r io.Reader) (schema.Schema, []records.Record, error) {
	br := bufio.NewReader(r)

	first, err := peekNonSpace(br)
	if err != nil {
		return nil, nil, fmt.Errorf("read json: %w", err)
	}

	var objs []map[string]any
	dec := json.NewDecoder(br)
	dec.UseNumber()

	switch first {
	case '[':
		if !jr.opt.AllowArrays {
			return nil, nil, fmt.Errorf("read json: top-level arrays not enabled (set allow_arrays)")
		}
		if err := dec.Decode(&objs); err != nil {
			return nil, nil, fmt.Errorf("read json: %w", err)
		}
	case '{':
		// NDJSON / concatenated objects: Decode consumes one object per call.
		for {
			var obj map[string]any
			err := dec.Decode(&obj)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, nil, fmt.Errorf("read json: %w", err)
			}
			objs = append(objs, obj)
		}
	default:
		return nil, nil, fmt.Errorf("read json: top-level value must be an object, got %q", first)
	}

	return buildRows(objs)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			if _, err := br.ReadByte(); err != nil {
				return 0, err
			}
		default:
			return b[0], nil
		}
	}
}

// buildRows derives the schema and converts json.Number values.
func buildRows(objs []map[string]any) (schema.Schema, []records.Record, error) {
	var sch schema.Schema
	seen := map[string]bool{}

	rows := make([]records.Record, 0, len(objs))
	for _, obj := range objs {
		rec := make(records.Record, len(obj))
		for k, v := range obj {
			rec[k] = convertJSON(v)
		}
		rows = append(rows, rec)

		for _, k := range sortedKeys(obj) {
			if !seen[k] {
				seen[k] = true
				sch = append(sch, schema.Column{Name: k, Type: jsonKind(obj[k])})
			}
		}
	}

	return sch, rows, nil
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func jsonKind(v any) string {
	switch t := v.(type) {
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return "int"
		}
		return "float"
	case bool:
		return "bool"
	default:
		return "string"
	}
}

func convertJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
