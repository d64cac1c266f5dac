package step

import (
	"context"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/schema"
)

// Validator checks a materialized dataset's columns against the expected
// list. The default comparison is by name set; ordered=true also requires
// the declared order. It produces no dataset.
type Validator struct{}

func (v *Validator) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := reg.Resolve(def.Params.String("source", ""))
	if err != nil {
		return 0, err
	}

	expected := def.Params.StringSlice("expected_columns")

	var diff schema.Diff
	if def.Params.Bool("ordered", false) {
		diff = src.Schema.CompareOrdered(expected)
	} else {
		diff = src.Schema.Compare(expected)
	}
	if !diff.Empty() {
		return 0, errs.New(errs.KindValidationMismatch,
			"validate %s: dataset %s: missing=%v extra=%v", def.Name, src.Name, diff.Missing, diff.Extra)
	}
	return int64(len(src.Rows)), nil
}
