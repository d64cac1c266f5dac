// Package records defines the row representation shared by every pipeline
// stage. A Record is a flat column-name → value map; values are whatever the
// extractor or a transform produced (string, int64, float64, bool, nil).
package records

// Record is a single logical row.
type Record map[string]any

// Clone returns a shallow copy of the record. Transforms that produce a new
// dataset must not alias rows owned by their input dataset.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// IsEmpty reports whether the value counts as "no value" for validation and
// dedup purposes: nil or the empty string.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
