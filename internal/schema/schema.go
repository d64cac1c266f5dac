// Package schema models dataset schemas: the ordered column list a dataset
// carries through the run, and the set-diff used by validate steps.
package schema

import "sort"

// Column is one named, typed column. Type is informational ("string",
// "int", "float", "bool", ...); handlers that care about value types inspect
// the values themselves.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Schema is an ordered sequence of columns. Order is significant: it is the
// column order of extracted files and of join output.
type Schema []Column

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// IndexOf returns the position of the named column, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the named column exists.
func (s Schema) Has(name string) bool { return s.IndexOf(name) >= 0 }

// Clone returns an independent copy.
func (s Schema) Clone() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	return out
}

// Diff is the result of comparing an actual schema against an expected
// column list: Missing lists expected names the schema lacks, Extra lists
// schema names that were not expected. Both are sorted for stable output.
type Diff struct {
	Missing []string `json:"missing"`
	Extra   []string `json:"extra"`
}

// Empty reports whether the comparison found no differences.
func (d Diff) Empty() bool { return len(d.Missing) == 0 && len(d.Extra) == 0 }

// Compare diffs the schema's column-name set against expected, ignoring
// order. Use CompareOrdered when position matters.
func (s Schema) Compare(expected []string) Diff {
	want := make(map[string]struct{}, len(expected))
	for _, n := range expected {
		want[n] = struct{}{}
	}
	have := make(map[string]struct{}, len(s))
	for _, c := range s {
		have[c.Name] = struct{}{}
	}

	var d Diff
	for n := range want {
		if _, ok := have[n]; !ok {
			d.Missing = append(d.Missing, n)
		}
	}
	for n := range have {
		if _, ok := want[n]; !ok {
			d.Extra = append(d.Extra, n)
		}
	}
	sort.Strings(d.Missing)
	sort.Strings(d.Extra)
	return d
}

// CompareOrdered diffs against expected position by position. Any name that
// appears out of order is reported on both sides of the diff so the mismatch
// is never silent.
func (s Schema) CompareOrdered(expected []string) Diff {
	names := s.Names()
	max := len(names)
	if len(expected) > max {
		max = len(expected)
	}

	var d Diff
	for i := 0; i < max; i++ {
		switch {
		case i >= len(names):
			d.Missing = append(d.Missing, expected[i])
		case i >= len(expected):
			d.Extra = append(d.Extra, names[i])
		case names[i] != expected[i]:
			d.Missing = append(d.Missing, expected[i])
			d.Extra = append(d.Extra, names[i])
		}
	}
	sort.Strings(d.Missing)
	sort.Strings(d.Extra)
	return d
}
