package runner

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/errs"
	"declpipe/internal/schema"
	"declpipe/internal/sink"
	"declpipe/internal/step"
)

// fakeHandler materializes its target on success and replays the scripted
// per-attempt errors first.
type fakeHandler struct {
	mu       sync.Mutex
	attempts []error // error returned per attempt; nil entries succeed
	calls    int
	rows     int64
}

func (h *fakeHandler) Run(ctx context.Context, def config.StepDefinition, reg *dataset.Registry) (int64, error) {
	h.mu.Lock()
	h.calls++
	n := h.calls
	h.mu.Unlock()

	if n <= len(h.attempts) && h.attempts[n-1] != nil {
		return 0, h.attempts[n-1]
	}
	if target := def.Produces(); target != "" {
		if err := reg.Register(target, schema.Schema{{Name: "x"}}, def.Name); err != nil {
			return 0, err
		}
		if err := reg.MarkMaterialized(target, def.Name, nil); err != nil {
			return 0, err
		}
	}
	return h.rows, nil
}

// slowHandler blocks until its context expires.
type slowHandler struct{}

func (slowHandler) Run(ctx context.Context, _ config.StepDefinition, _ *dataset.Registry) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

// fakeDispatcher routes by step name.
type fakeDispatcher map[string]step.Handler

func (d fakeDispatcher) Dispatch(def config.StepDefinition) (step.Handler, error) {
	h, ok := d[def.Name]
	if !ok {
		return nil, errs.New(errs.KindUnsupportedStepType, "no handler for %s", def.Name)
	}
	return h, nil
}

func extractStep(name, target string) config.StepDefinition {
	return config.StepDefinition{
		Name: name, Type: config.StepExtract,
		Params: config.Options{"source": name + ".csv", "target": target},
	}
}

func filterStep(name, source, target string) config.StepDefinition {
	return config.StepDefinition{
		Name: name, Type: config.StepTransform, Subtype: config.SubtypeFilter,
		Params: config.Options{"source": source, "condition": "x = 1", "target": target},
	}
}

func pipelineOf(onFailure config.FailurePolicy, onValidation config.ValidationPolicy, steps ...config.StepDefinition) *config.PipelineConfig {
	return &config.PipelineConfig{
		Name:                "test_pipeline",
		OnStepFailure:       onFailure,
		OnValidationFailure: onValidation,
		Steps:               steps,
	}
}

func statuses(res *PipelineResult) map[string]Status {
	out := make(map[string]Status, len(res.Steps))
	for _, s := range res.Steps {
		out[s.StepName] = s.Status
	}
	return out
}

func TestRun_AllSucceed(t *testing.T) {
	t.Parallel()

	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		extractStep("pull", "raw"),
		filterStep("keep", "raw", "kept"),
	)
	d := fakeDispatcher{
		"pull": &fakeHandler{rows: 5},
		"keep": &fakeHandler{rows: 3},
	}

	log := sink.NewMemoryLog()
	lineage := sink.NewMemoryLineage()
	r := New(d, WithSinks(log, lineage))

	res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.False(t, res.HardFailure)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, int64(5), res.Steps[0].Rows)
	assert.Equal(t, 1, res.Steps[0].Attempts)

	// Two transitions per executed step, in execution order.
	lines := log.Lines()
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "pull Running")
	assert.Contains(t, lines[1], "pull Succeeded")
	assert.Contains(t, lines[3], "keep Succeeded")

	// keep consumed raw, which pull produced.
	edges := lineage.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, sink.Edge{ProducingStep: "pull", Dataset: "raw", ConsumingStep: "keep"}, edges[0])
}

func TestRun_SkipDependents(t *testing.T) {
	t.Parallel()

	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		extractStep("pull_a", "a"),
		filterStep("uses_a", "a", "a2"),
		extractStep("pull_b", "b"),
	)
	d := fakeDispatcher{
		"pull_a": &fakeHandler{attempts: []error{errs.New(errs.KindConfig, "bad params")}},
		"uses_a": &fakeHandler{},
		"pull_b": &fakeHandler{rows: 1},
	}

	r := New(d)
	res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	st := statuses(res)
	assert.Equal(t, StatusFailed, st["pull_a"])
	assert.Equal(t, StatusSkipped, st["uses_a"])
	assert.Equal(t, StatusSucceeded, st["pull_b"])
	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, res.HardFailure)
}

func TestRun_AbortRecordsRemainingAsSkipped(t *testing.T) {
	t.Parallel()

	cfg := pipelineOf(config.FailAbort, config.ValidationContinue,
		extractStep("pull_a", "a"),
		extractStep("pull_b", "b"),
		extractStep("pull_c", "c"),
	)
	d := fakeDispatcher{
		"pull_a": &fakeHandler{attempts: []error{errs.New(errs.KindConfig, "boom")}},
		"pull_b": &fakeHandler{},
		"pull_c": &fakeHandler{},
	}

	r := New(d)
	res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	st := statuses(res)
	assert.Equal(t, StatusFailed, st["pull_a"])
	assert.Equal(t, StatusSkipped, st["pull_b"])
	assert.Equal(t, StatusSkipped, st["pull_c"])
	require.Len(t, res.Steps, 3) // skipped steps are recorded, never omitted
}

func TestRun_ValidationPolicies(t *testing.T) {
	t.Parallel()

	mismatch := errs.New(errs.KindValidationMismatch, "missing=[date] extra=[]")
	buildCfg := func(policy config.ValidationPolicy) (*config.PipelineConfig, fakeDispatcher) {
		cfg := pipelineOf(config.FailAbort, policy,
			extractStep("pull", "raw"),
			config.StepDefinition{
				Name: "check", Type: config.StepValidate,
				Params: config.Options{"source": "raw", "expected_columns": []any{"x", "date"}},
			},
			extractStep("pull_more", "more"),
		)
		d := fakeDispatcher{
			"pull":      &fakeHandler{},
			"check":     &fakeHandler{attempts: []error{mismatch}},
			"pull_more": &fakeHandler{},
		}
		return cfg, d
	}

	// continue: diagnostic failure, the rest of the pipeline still runs.
	cfg, d := buildCfg(config.ValidationContinue)
	res, err := New(d).Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)
	st := statuses(res)
	assert.Equal(t, StatusFailed, st["check"])
	assert.Equal(t, StatusSucceeded, st["pull_more"])
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, res.HardFailure)

	// abort: validation failure stops the run and is a hard failure.
	cfg, d = buildCfg(config.ValidationAbort)
	res, err = New(d).Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)
	st = statuses(res)
	assert.Equal(t, StatusFailed, st["check"])
	assert.Equal(t, StatusSkipped, st["pull_more"])
	assert.True(t, res.HardFailure)
}

func TestRun_RetriesTransientOnly(t *testing.T) {
	t.Parallel()

	ioErr := errs.New(errs.KindIO, "connection reset")
	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		extractStep("flaky", "a"),
	)
	d := fakeDispatcher{
		"flaky": &fakeHandler{attempts: []error{ioErr, ioErr}, rows: 1},
	}

	r := New(d, WithRetries(2, time.Millisecond))
	res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.Equal(t, StatusSucceeded, res.Steps[0].Status)
	assert.Equal(t, 3, res.Steps[0].Attempts)

	// Permanent failures burn no retries.
	cfg = pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		extractStep("broken", "b"),
	)
	broken := &fakeHandler{attempts: []error{errs.New(errs.KindSchemaMismatch, "bad columns")}}
	res, err = New(fakeDispatcher{"broken": broken}, WithRetries(2, time.Millisecond)).
		Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Steps[0].Status)
	assert.Equal(t, 1, res.Steps[0].Attempts)
	assert.Equal(t, 1, broken.calls)
}

func TestRun_TimeoutIsNotRetried(t *testing.T) {
	t.Parallel()

	def := extractStep("slow", "a")
	def.Params["timeout"] = "20ms"
	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue, def)

	r := New(fakeDispatcher{"slow": slowHandler{}}, WithRetries(3, time.Millisecond))
	res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	require.Len(t, res.Steps, 1)
	assert.Equal(t, StatusFailed, res.Steps[0].Status)
	assert.Equal(t, errs.KindTimeout, res.Steps[0].ErrorKind)
	assert.Equal(t, 1, res.Steps[0].Attempts)
	assert.True(t, strings.Contains(res.Steps[0].Message, "timeout"), res.Steps[0].Message)
}

func TestRun_UnsupportedStepFailsUnderPolicy(t *testing.T) {
	t.Parallel()

	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		extractStep("mystery", "a"),
		extractStep("pull_b", "b"),
	)
	d := fakeDispatcher{"pull_b": &fakeHandler{}} // mystery has no handler

	res, err := New(d).Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	st := statuses(res)
	assert.Equal(t, StatusFailed, st["mystery"])
	assert.Equal(t, StatusSucceeded, st["pull_b"])
	assert.Equal(t, errs.KindUnsupportedStepType, res.Steps[0].ErrorKind)
}

func TestRun_SeededInputsFeedSteps(t *testing.T) {
	t.Parallel()

	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		filterStep("keep", "seeded", "kept"),
	)
	cfg.Inputs = []string{"seeded"}

	reg := dataset.NewRegistry()
	require.NoError(t, reg.Seed("seeded", schema.Schema{{Name: "x"}}, nil))

	lineage := sink.NewMemoryLineage()
	r := New(fakeDispatcher{"keep": &fakeHandler{}}, WithSinks(nil, lineage))
	res, err := r.Run(context.Background(), cfg, reg)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)

	// A seeded input has no producing step.
	edges := lineage.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "", edges[0].ProducingStep)
}

func joinStep(name, left, right, target string) config.StepDefinition {
	return config.StepDefinition{
		Name: name, Type: config.StepTransform, Subtype: config.SubtypeJoin,
		Params: config.Options{"left": left, "right": right, "join_col": "x", "target": target},
	}
}

func TestRun_ConcurrentDiamond(t *testing.T) {
	t.Parallel()

	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		extractStep("pull_a", "a"),
		extractStep("pull_b", "b"),
		joinStep("merge", "a", "b", "merged"),
		filterStep("keep", "merged", "kept"),
	)
	handlers := fakeDispatcher{
		"pull_a": &fakeHandler{rows: 2},
		"pull_b": &fakeHandler{rows: 3},
		"merge":  &fakeHandler{rows: 5},
		"keep":   &fakeHandler{rows: 1},
	}
	r := New(handlers, WithConcurrency(true))

	res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.False(t, res.HardFailure)
	require.Len(t, res.Steps, 4)
	for name, h := range handlers {
		assert.Equal(t, 1, h.(*fakeHandler).calls, name)
	}
	assert.Equal(t, map[string]Status{
		"pull_a": StatusSucceeded,
		"pull_b": StatusSucceeded,
		"merge":  StatusSucceeded,
		"keep":   StatusSucceeded,
	}, statuses(res))
}

func TestRun_ConcurrentBranchFailureSkipsDownstream(t *testing.T) {
	t.Parallel()

	cfg := pipelineOf(config.FailSkipDependents, config.ValidationContinue,
		extractStep("pull_a", "a"),
		extractStep("pull_b", "b"),
		joinStep("merge", "a", "b", "merged"),
		filterStep("keep", "merged", "kept"),
	)
	handlers := fakeDispatcher{
		"pull_a": &fakeHandler{rows: 2},
		"pull_b": &fakeHandler{attempts: []error{errs.New(errs.KindSchemaMismatch, "boom")}},
		"merge":  &fakeHandler{},
		"keep":   &fakeHandler{},
	}
	r := New(handlers, WithConcurrency(true))

	res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Status)
	assert.True(t, res.HardFailure)
	assert.Equal(t, map[string]Status{
		"pull_a": StatusSucceeded,
		"pull_b": StatusFailed,
		"merge":  StatusSkipped,
		"keep":   StatusSkipped,
	}, statuses(res))

	// The skipped steps never reached their handlers.
	assert.Equal(t, 0, handlers["merge"].(*fakeHandler).calls)
	assert.Equal(t, 0, handlers["keep"].(*fakeHandler).calls)
}
