// Package runner executes a loaded pipeline configuration: it walks the
// steps through the Pending, Running, terminal state machine, applies the
// failure policies, and records every transition to the log and lineage
// sinks.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/metrics"
	"declpipe/internal/sink"
	"declpipe/internal/step"
)

// Dispatcher resolves a step definition to its handler.
type Dispatcher interface {
	Dispatch(def config.StepDefinition) (step.Handler, error)
}

// Runner executes pipelines. The zero value is not usable; construct with
// New.
type Runner struct {
	dispatcher Dispatcher
	log        sink.LogSink
	lineage    sink.LineageSink

	maxRetries int
	retryBase  time.Duration
	concurrent bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithSinks installs the log and lineage sinks. Nil sinks stay in-memory.
func WithSinks(log sink.LogSink, lineage sink.LineageSink) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
		if lineage != nil {
			r.lineage = lineage
		}
	}
}

// WithRetries sets the retry budget for transient failures and the base
// backoff delay, which doubles per attempt.
func WithRetries(max int, base time.Duration) Option {
	return func(r *Runner) {
		r.maxRetries = max
		r.retryBase = base
	}
}

// WithConcurrency enables wave-parallel execution of steps with disjoint
// dataset dependencies.
func WithConcurrency(on bool) Option {
	return func(r *Runner) { r.concurrent = on }
}

// New builds a Runner around a dispatcher. Defaults: in-memory sinks, two
// retries with a 250ms base backoff, sequential execution.
func New(d Dispatcher, opts ...Option) *Runner {
	r := &Runner{
		dispatcher: d,
		log:        sink.NewMemoryLog(),
		lineage:    sink.NewMemoryLineage(),
		maxRetries: 2,
		retryBase:  250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the pipeline against the registry. The caller seeds the
// registry with any datasets declared under inputs. Run returns an error
// only when the pipeline cannot start at all; step failures are reported
// through the PipelineResult.
func (r *Runner) Run(ctx context.Context, cfg *config.PipelineConfig, reg *dataset.Registry) (*PipelineResult, error) {
	waves, err := plan(cfg, r.concurrent)
	if err != nil {
		return nil, err
	}

	result := &PipelineResult{
		RunID:     uuid.NewString(),
		Pipeline:  cfg.Name,
		Status:    StatusSucceeded,
		StartedAt: time.Now(),
	}
	slog.Info("pipeline started", "pipeline", cfg.Name, "run_id", result.RunID, "steps", len(cfg.Steps))

	aborted := false
	for _, wave := range waves {
		if aborted {
			for _, def := range wave {
				result.Steps = append(result.Steps, r.skip(cfg, def, "aborted by earlier failure"))
			}
			continue
		}

		results := make([]StepResult, len(wave))
		var g errgroup.Group
		for i, def := range wave {
			i, def := i, def
			g.Go(func() error {
				results[i] = r.runStep(ctx, cfg, def, reg)
				return nil
			})
		}
		_ = g.Wait()

		for _, res := range results {
			result.Steps = append(result.Steps, res)
			if res.Status != StatusFailed {
				continue
			}
			result.Status = StatusFailed
			if res.ErrorKind == errs.KindValidationMismatch {
				if cfg.OnValidationFailure == config.ValidationAbort {
					result.HardFailure = true
					aborted = true
				}
				continue
			}
			result.HardFailure = true
			if cfg.OnStepFailure == config.FailAbort {
				aborted = true
			}
		}
	}

	result.EndedAt = time.Now()
	slog.Info("pipeline finished",
		"pipeline", cfg.Name, "run_id", result.RunID,
		"status", result.Status, "duration", result.EndedAt.Sub(result.StartedAt),
		"datasets", reg.Names())
	return result, nil
}

// runStep drives one step from Pending to its terminal state.
func (r *Runner) runStep(ctx context.Context, cfg *config.PipelineConfig, def config.StepDefinition, reg *dataset.Registry) StepResult {
	for _, name := range def.Consumes() {
		if !reg.IsMaterialized(name) {
			return r.skip(cfg, def, "required dataset "+name+" is not materialized")
		}
	}

	res := StepResult{StepName: def.Name, StartedAt: time.Now()}
	r.transition(cfg, def.Name, StatusRunning, "")

	handler, err := r.dispatcher.Dispatch(def)
	if err == nil {
		for _, name := range def.Consumes() {
			lerr := r.lineage.Record(sink.Edge{
				ProducingStep: reg.Producer(name),
				Dataset:       name,
				ConsumingStep: def.Name,
			})
			if lerr != nil {
				slog.Warn("lineage record failed", "step", def.Name, "dataset", name, "error", lerr)
			}
		}
		res.Rows, res.Attempts, err = r.attempt(ctx, handler, def, reg)
	}

	res.EndedAt = time.Now()
	if err != nil {
		res.Status = StatusFailed
		res.ErrorKind = errs.KindOf(err)
		res.Message = err.Error()
	} else {
		res.Status = StatusSucceeded
	}

	r.transition(cfg, def.Name, res.Status, res.Message)
	metrics.RecordStep(cfg.Name, def.Name, string(res.Status), res.Duration())
	metrics.RecordRows(cfg.Name, def.Name, res.Rows)
	return res
}

// attempt runs the handler with the step timeout applied, retrying
// transient failures with exponential backoff. Timeouts and logic errors
// are never retried.
func (r *Runner) attempt(ctx context.Context, handler step.Handler, def config.StepDefinition, reg *dataset.Registry) (int64, int, error) {
	timeout := def.Timeout()

	var (
		rows int64
		err  error
	)
	for n := 0; ; n++ {
		runCtx, cancel := ctx, context.CancelFunc(func() {})
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		rows, err = handler.Run(runCtx, def, reg)
		cancel()

		if err == nil {
			return rows, n + 1, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return 0, n + 1, errs.Wrap(errs.KindTimeout, err, "step %s exceeded its %s timeout", def.Name, timeout)
		}
		if ctx.Err() != nil || !errs.IsTransient(err) || n >= r.maxRetries {
			return 0, n + 1, err
		}

		delay := r.retryBase << n
		slog.Warn("transient step failure, retrying",
			"step", def.Name, "attempt", n+1, "backoff", delay, "error", err)
		select {
		case <-ctx.Done():
			return 0, n + 1, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (r *Runner) skip(cfg *config.PipelineConfig, def config.StepDefinition, reason string) StepResult {
	now := time.Now()
	r.transition(cfg, def.Name, StatusSkipped, reason)
	metrics.RecordStep(cfg.Name, def.Name, string(StatusSkipped), 0)
	return StepResult{
		StepName:  def.Name,
		Status:    StatusSkipped,
		Message:   reason,
		StartedAt: now,
		EndedAt:   now,
	}
}

// transition emits the slog event and the log-sink line for one state
// change.
func (r *Runner) transition(cfg *config.PipelineConfig, stepName string, status Status, message string) {
	slog.Info("step transition", "pipeline", cfg.Name, "step", stepName, "status", status, "message", message)
	if err := r.log.Record(time.Now(), stepName, string(status), message); err != nil {
		slog.Warn("log sink write failed", "step", stepName, "error", err)
	}
}
