package step

import (
	"context"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/predicate"
	"declpipe/pkg/records"
)

// Filter keeps the rows for which the configured condition evaluates true.
// Row order and schema carry over unchanged.
type Filter struct{}

func (f *Filter) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	src, err := reg.Resolve(def.Params.String("source", ""))
	if err != nil {
		return 0, err
	}

	pred, err := predicate.Parse(def.Params.String("condition", ""))
	if err != nil {
		return 0, errs.Wrap(errs.KindConfig, err, "filter %s: condition", def.Name)
	}

	out := make([]records.Record, 0, len(src.Rows))
	for _, rec := range src.Rows {
		keep, err := pred.Eval(rec, src.Schema)
		if err != nil {
			return 0, err
		}
		if keep {
			out = append(out, rec)
		}
	}

	return materialize(reg, def, src.Schema.Clone(), out)
}
