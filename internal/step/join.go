package step

import (
	"context"
	"fmt"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/schema"
	"declpipe/pkg/records"
)

// Join combines two materialized datasets on a shared key column. The output
// schema is the left columns followed by the right columns minus the key.
// Non-key columns present on both sides are prefixed with their dataset name
// so no information is silently dropped.
type Join struct{}

func (j *Join) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	leftName := def.Params.String("left", "")
	rightName := def.Params.String("right", "")
	joinCol := def.Params.String("join_col", "")
	joinType := def.Params.String("join_type", "inner")

	left, err := reg.Resolve(leftName)
	if err != nil {
		return 0, err
	}
	right, err := reg.Resolve(rightName)
	if err != nil {
		return 0, err
	}

	if !left.Schema.Has(joinCol) || !right.Schema.Has(joinCol) {
		return 0, errs.New(errs.KindSchemaMismatch,
			"join %s: key column %q must exist in both %s and %s", def.Name, joinCol, leftName, rightName)
	}

	leftOut, rightOut := joinedSchemas(left, right, joinCol)

	outSch := make(schema.Schema, 0, len(leftOut)+len(rightOut))
	outSch = append(outSch, leftOut...)
	outSch = append(outSch, rightOut...)

	// Hash join: index the right side by key, stream the left side. Rows
	// with a null key never match, as in SQL.
	index := make(map[string][]int, len(right.Rows))
	for i, rec := range right.Rows {
		if k, ok := joinKey(rec[joinCol]); ok {
			index[k] = append(index[k], i)
		}
	}

	var out []records.Record
	matched := make([]bool, len(right.Rows))
	for _, lrec := range left.Rows {
		k, ok := joinKey(lrec[joinCol])
		hits := index[k]
		if ok && len(hits) > 0 {
			for _, ri := range hits {
				matched[ri] = true
				out = append(out, mergeRows(lrec, right.Rows[ri], left.Schema, right.Schema, leftOut, rightOut, joinCol))
			}
			continue
		}
		if joinType == "left" || joinType == "full" {
			out = append(out, mergeRows(lrec, nil, left.Schema, right.Schema, leftOut, rightOut, joinCol))
		}
	}
	if joinType == "right" || joinType == "full" {
		for i, rrec := range right.Rows {
			if !matched[i] {
				out = append(out, mergeRows(nil, rrec, left.Schema, right.Schema, leftOut, rightOut, joinCol))
			}
		}
	}

	return materialize(reg, def, outSch, out)
}

// joinedSchemas renames the overlapping non-key columns on both sides and
// drops the duplicate key column from the right side.
func joinedSchemas(left, right *dataset.Dataset, joinCol string) (leftOut, rightOut schema.Schema) {
	overlap := map[string]bool{}
	for _, c := range left.Schema {
		if c.Name != joinCol && right.Schema.Has(c.Name) {
			overlap[c.Name] = true
		}
	}

	leftOut = make(schema.Schema, 0, len(left.Schema))
	for _, c := range left.Schema {
		name := c.Name
		if overlap[name] {
			name = left.Name + "_" + name
		}
		leftOut = append(leftOut, schema.Column{Name: name, Type: c.Type})
	}

	rightOut = make(schema.Schema, 0, len(right.Schema))
	for _, c := range right.Schema {
		if c.Name == joinCol {
			continue
		}
		name := c.Name
		if overlap[name] {
			name = right.Name + "_" + name
		}
		rightOut = append(rightOut, schema.Column{Name: name, Type: c.Type})
	}
	return leftOut, rightOut
}

// mergeRows builds an output row; a nil side null-fills its columns. The
// renamed schemas are positionally aligned with the originals, except the
// right side where the key column was removed.
func mergeRows(lrec, rrec records.Record, leftSch, rightSch, leftOut, rightOut schema.Schema, joinCol string) records.Record {
	out := make(records.Record, len(leftOut)+len(rightOut))
	for i, c := range leftSch {
		if lrec == nil {
			out[leftOut[i].Name] = nil
		} else {
			out[leftOut[i].Name] = lrec[c.Name]
		}
	}
	// An unmatched right row still carries the key value.
	if lrec == nil && rrec != nil {
		if i := leftSch.IndexOf(joinCol); i >= 0 {
			out[leftOut[i].Name] = rrec[joinCol]
		}
	}
	j := 0
	for _, c := range rightSch {
		if c.Name == joinCol {
			continue
		}
		if rrec == nil {
			out[rightOut[j].Name] = nil
		} else {
			out[rightOut[j].Name] = rrec[c.Name]
		}
		j++
	}
	return out
}

// joinKey renders a key value into a comparable string. The bool result is
// false for null keys.
func joinKey(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return "s:" + t, true
	case int:
		return fmt.Sprintf("n:%d", t), true
	case int64:
		return fmt.Sprintf("n:%d", t), true
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("n:%d", int64(t)), true
		}
		return fmt.Sprintf("f:%g", t), true
	case bool:
		return fmt.Sprintf("b:%t", t), true
	default:
		return fmt.Sprintf("v:%v", t), true
	}
}

// materialize registers and materializes a step's target dataset.
func materialize(reg *dataset.Registry, def config.StepDefinition, sch schema.Schema, rows []records.Record) (int64, error) {
	target := def.Produces()
	if err := reg.Register(target, sch, def.Name); err != nil {
		return 0, err
	}
	if err := reg.MarkMaterialized(target, def.Name, rows); err != nil {
		reg.Drop(target)
		return 0, err
	}
	return int64(len(rows)), nil
}
