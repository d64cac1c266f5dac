package runner

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"

	"declpipe/internal/config"
)

// plan groups the steps into execution waves. Sequential mode puts each
// step in its own wave, in declared order. Concurrent mode derives waves
// from the dataset dependency graph: a step's wave is one past the deepest
// step it consumes from, so steps inside a wave never share data.
func plan(cfg *config.PipelineConfig, concurrent bool) ([][]config.StepDefinition, error) {
	if !concurrent {
		waves := make([][]config.StepDefinition, 0, len(cfg.Steps))
		for _, def := range cfg.Steps {
			waves = append(waves, []config.StepDefinition{def})
		}
		return waves, nil
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())

	producerOf := map[string]string{}
	for _, def := range cfg.Steps {
		if err := g.AddVertex(def.Name); err != nil {
			return nil, fmt.Errorf("plan: add step %s: %w", def.Name, err)
		}
		if target := def.Produces(); target != "" {
			producerOf[target] = def.Name
		}
	}
	for _, def := range cfg.Steps {
		for _, name := range def.Consumes() {
			producer, ok := producerOf[name]
			if !ok {
				continue // declared input, no producing step
			}
			err := g.AddEdge(producer, def.Name)
			if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("plan: edge %s->%s: %w", producer, def.Name, err)
			}
		}
	}

	order, err := graph.TopologicalSort(g)
	if err != nil {
		return nil, fmt.Errorf("plan: sort: %w", err)
	}
	preds, err := g.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("plan: predecessors: %w", err)
	}

	depth := make(map[string]int, len(order))
	maxDepth := 0
	for _, name := range order {
		d := 0
		for pred := range preds[name] {
			if depth[pred]+1 > d {
				d = depth[pred] + 1
			}
		}
		depth[name] = d
		if d > maxDepth {
			maxDepth = d
		}
	}

	// Declared order within a wave keeps runs reproducible.
	waves := make([][]config.StepDefinition, maxDepth+1)
	for _, def := range cfg.Steps {
		d := depth[def.Name]
		waves[d] = append(waves[d], def)
	}
	return waves, nil
}
