package step

import (
	"context"
	"os"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/storage"
)

// Loader writes a materialized dataset through a registered storage backend.
// Overwrite mode is idempotent; append mode grows the target on every run.
type Loader struct{}

func (l *Loader) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	src, err := reg.Resolve(def.Params.String("source", ""))
	if err != nil {
		return 0, err
	}

	dsn := def.Params.String("dsn", "")
	if env := def.Params.String("dsn_env", ""); env != "" {
		dsn = os.Getenv(env)
	}

	sink, err := storage.New(ctx, storage.Config{
		Format: def.Params.String("format", ""),
		Target: def.Params.String("target", ""),
		DSN:    dsn,
		Params: def.Params,
	})
	if err != nil {
		return 0, err
	}
	defer sink.Close()

	mode := storage.Mode(def.Params.String("mode", string(storage.ModeOverwrite)))

	n, err := sink.Write(ctx, src.Schema, src.Rows, mode)
	if err != nil {
		if ctx.Err() != nil {
			return 0, errs.Wrap(errs.KindTimeout, err, "load %s", def.Name)
		}
		return 0, errs.Wrap(errs.KindIO, err, "load %s: write %s", def.Name, def.Params.String("target", ""))
	}
	return n, nil
}
