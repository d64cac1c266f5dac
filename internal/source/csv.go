package source

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"declpipe/internal/schema"
	"declpipe/pkg/records"
)

// CSVOptions configures the delimited-text reader. All fields are optional;
// sensible defaults are applied when a field is zero.
type CSVOptions struct {
	// HasHeader indicates whether the first row contains column headers.
	// Without a header, columns are named col_0, col_1, ...
	HasHeader bool

	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing space from each field value.
	TrimSpace bool

	// HeaderMap maps source header names to canonical column names (e.g.
	// localization to snake_case). Only applies when HasHeader is true.
	HeaderMap map[string]string

	// Encoding names the input charset ("windows-1250", "iso-8859-2", ...).
	// Empty means UTF-8. The utf-8 BOM is always stripped.
	Encoding string
}

// CSVReader reads delimited text into typed rows: after parsing, each column's
// type is inferred across all values (int, float, bool, else string) and the
// values are coerced accordingly, so downstream filters compare numbers
// numerically. It is safe to reuse across inputs but not concurrency-safe.
type CSVReader struct{ opt CSVOptions }

// NewCSVReader constructs a CSVReader with the provided options.
func NewCSVReader(opt CSVOptions) *CSVReader { return &CSVReader{opt: opt} }

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Read decodes the full stream. It returns the ordered schema and the rows
// in input order. Ragged rows (fewer fields than the header) null-fill the
// missing trailing columns; surplus fields are dropped.
func (cr *CSVReader) Read(r io.Reader) (schema.Schema, []records.Record, error) {
	dec, err := decodeReader(r, cr.opt.Encoding)
	if err != nil {
		return nil, nil, err
	}

	comma := cr.opt.Comma
	if comma == 0 {
		comma = ','
	}

	cc := csv.NewReader(dec)
	cc.Comma = comma
	cc.FieldsPerRecord = -1
	cc.LazyQuotes = true
	cc.TrimLeadingSpace = cr.opt.TrimSpace

	raw, err := cc.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("read csv: empty input")
	}

	var header []string
	if cr.opt.HasHeader {
		header = cr.canonicalHeader(raw[0])
		raw = raw[1:]
	} else {
		header = make([]string, len(raw[0]))
		for i := range header {
			header[i] = fmt.Sprintf("col_%d", i)
		}
	}

	// Column-wise type inference over the raw string values.
	kinds := make([]string, len(header))
	for col := range header {
		kinds[col] = inferKind(raw, col)
	}

	sch := make(schema.Schema, len(header))
	for i, name := range header {
		sch[i] = schema.Column{Name: name, Type: kinds[i]}
	}

	rows := make([]records.Record, 0, len(raw))
	for _, fields := range raw {
		rec := make(records.Record, len(header))
		for col, name := range header {
			if col >= len(fields) {
				rec[name] = nil
				continue
			}
			v := fields[col]
			if cr.opt.TrimSpace {
				v = strings.TrimSpace(v)
			}
			rec[name] = coerce(v, kinds[col])
		}
		rows = append(rows, rec)
	}
	return sch, rows, nil
}

func (cr *CSVReader) canonicalHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, raw := range cells {
		name := strings.TrimSpace(strings.TrimPrefix(raw, utf8BOM))
		if mapped, ok := cr.opt.HeaderMap[name]; ok && mapped != "" {
			name = mapped
		}
		out[i] = name
	}
	return out
}

// inferKind scans a column's non-empty values and picks the narrowest kind
// every value satisfies: int, then float, then bool, else string. A column
// with no values at all stays string.
func inferKind(raw [][]string, col int) string {
	kind := ""
	for _, fields := range raw {
		if col >= len(fields) {
			continue
		}
		v := strings.TrimSpace(fields[col])
		if v == "" {
			continue
		}
		kind = widen(kind, kindOf(v))
		if kind == "string" {
			break
		}
	}
	if kind == "" {
		return "string"
	}
	return kind
}

func kindOf(v string) string {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return "int"
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return "float"
	}
	switch strings.ToLower(v) {
	case "true", "false":
		return "bool"
	}
	return "string"
}

// widen merges the kind seen so far with the next value's kind.
func widen(prev, next string) string {
	switch {
	case prev == "" || prev == next:
		return next
	case (prev == "int" && next == "float") || (prev == "float" && next == "int"):
		return "float"
	default:
		return "string"
	}
}

func coerce(v, kind string) any {
	if v == "" {
		return nil
	}
	switch kind {
	case "int":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	case "bool":
		switch strings.ToLower(v) {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return v
}

// decodeReader wraps r with a charset decoder when enc names a non-UTF-8
// encoding. Names are matched loosely ("windows-1250", "win1250").
func decodeReader(r io.Reader, enc string) (io.Reader, error) {
	e, err := lookupEncoding(enc)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return r, nil
	}
	return transform.NewReader(r, e.NewDecoder()), nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1250", "win1250":
		return charmap.Windows1250, nil
	case "windows-1252", "win1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1":
		return charmap.ISO8859_1, nil
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}
