package runner_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"declpipe/internal/config"
	"declpipe/internal/dataset"
	"declpipe/internal/runner"
	"declpipe/internal/sink"
	"declpipe/internal/step"
	_ "declpipe/internal/storage/csvfile"
)

const e2eConfig = `
pipeline: orders_report
on_step_failure: skip_dependents
on_validation_failure: continue
steps:
  - name: pull_transactions
    type: extract
    params:
      source: %q
      target: transactions
  - name: keep_large
    type: transform
    subtype: filter
    params:
      source: transactions
      condition: "amount > 1000"
      target: large
  - name: check_large
    type: validate
    params:
      source: large
      expected_columns: [id, amount]
  - name: publish
    type: load
    params:
      source: large
      format: csv
      mode: overwrite
      target: %q
`

func TestPipeline_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	in := filepath.Join(dir, "transactions.csv")
	out := filepath.Join(dir, "large.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,amount\n1,250\n2,1500\n3,2750.5\n"), 0o644))

	doc := []byte(fmt.Sprintf(e2eConfig, in, out))
	cfg, err := config.Parse(doc, "yaml")
	require.NoError(t, err)

	lineage := sink.NewMemoryLineage()
	r := runner.New(step.NewDispatcher(), runner.WithSinks(nil, lineage))

	run := func() *runner.PipelineResult {
		res, err := r.Run(context.Background(), cfg, dataset.NewRegistry())
		require.NoError(t, err)
		return res
	}

	res := run()
	assert.Equal(t, runner.StatusSucceeded, res.Status)
	require.Len(t, res.Steps, 4)
	for _, s := range res.Steps {
		assert.Equal(t, runner.StatusSucceeded, s.Status, s.StepName)
	}
	assert.Equal(t, int64(3), res.Steps[0].Rows)
	assert.Equal(t, int64(2), res.Steps[1].Rows)

	first, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "id,amount\n2,1500\n3,2750.5\n", string(first))

	// Lineage covers every foreign dataset resolve.
	assert.Contains(t, lineage.Edges(), sink.Edge{
		ProducingStep: "pull_transactions", Dataset: "transactions", ConsumingStep: "keep_large",
	})
	assert.Contains(t, lineage.Edges(), sink.Edge{
		ProducingStep: "keep_large", Dataset: "large", ConsumingStep: "publish",
	})

	// A rerun with overwrite mode produces identical output.
	run()
	second, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
