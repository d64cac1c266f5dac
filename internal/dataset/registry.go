// Package dataset tracks the named datasets of one pipeline run: their
// schemas, their rows, and their materialization state.
//
// The registry's core guarantee is write-once per name: at most one step may
// register a given dataset, and only that step may materialize it. Because a
// consumer can resolve a name only after its sole producer marked it
// materialized, concurrent execution of steps with disjoint dependencies
// never races on a dataset.
package dataset

import (
	"sort"
	"sync"

	"declpipe/internal/errs"
	"declpipe/internal/schema"
	"declpipe/pkg/records"
)

// State is the lifecycle state of a dataset within a run.
type State string

const (
	Unmaterialized State = "unmaterialized"
	Materialized   State = "materialized"
)

// Dataset is a named, schema-bearing unit of data produced by exactly one
// step per run.
type Dataset struct {
	Name          string
	Schema        schema.Schema
	State         State
	ProducingStep string
	Rows          []records.Record
}

// Registry holds the datasets of a single run. It is owned by one runner
// instance; the mutex only guards the optional concurrent execution mode.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]*Dataset
}

// NewRegistry returns an empty registry scoped to one pipeline execution.
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*Dataset)}
}

// Register creates an unmaterialized dataset entry owned by producingStep.
// Registering a name twice in one run fails with kind=duplicate_dataset.
func (r *Registry) Register(name string, sch schema.Schema, producingStep string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sets[name]; exists {
		return errs.New(errs.KindDuplicateDataset, "dataset %q already registered in this run", name)
	}
	r.sets[name] = &Dataset{
		Name:          name,
		Schema:        sch.Clone(),
		State:         Unmaterialized,
		ProducingStep: producingStep,
	}
	return nil
}

// Seed registers and materializes a pre-existing run input in one call. The
// producing step is recorded as empty: no step of this run owns it.
func (r *Registry) Seed(name string, sch schema.Schema, rows []records.Record) error {
	if err := r.Register(name, sch, ""); err != nil {
		return err
	}
	return r.MarkMaterialized(name, "", rows)
}

// Resolve returns the dataset for name. It fails with kind=unknown_dataset
// when the name is absent or not yet materialized; callers never observe a
// half-produced dataset.
func (r *Registry) Resolve(name string) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.sets[name]
	if !ok {
		return nil, errs.New(errs.KindUnknownDataset, "dataset %q is not registered", name)
	}
	if d.State != Materialized {
		return nil, errs.New(errs.KindUnknownDataset, "dataset %q is not materialized", name)
	}
	return d, nil
}

// MarkMaterialized attaches rows to the dataset and flips it to
// Materialized. Only the producing step may call it; anything else is a
// programming error surfaced as unknown_dataset so it can never be confused
// with a legal transition.
func (r *Registry) MarkMaterialized(name, producingStep string, rows []records.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.sets[name]
	if !ok {
		return errs.New(errs.KindUnknownDataset, "dataset %q is not registered", name)
	}
	if d.ProducingStep != producingStep {
		return errs.New(errs.KindUnknownDataset,
			"step %q cannot materialize dataset %q owned by step %q", producingStep, name, d.ProducingStep)
	}
	d.Rows = rows
	d.State = Materialized
	return nil
}

// Drop removes a dataset entry. Used to undo a registration when its
// producing step fails partway, keeping extract atomic (either fully
// materialized or not registered at all).
func (r *Registry) Drop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, name)
}

// IsMaterialized reports whether name resolves, without returning the data.
func (r *Registry) IsMaterialized(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sets[name]
	return ok && d.State == Materialized
}

// Producer returns the producing step recorded for name, or "" when the
// dataset is unknown or a seeded input.
func (r *Registry) Producer(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.sets[name]; ok {
		return d.ProducingStep
	}
	return ""
}

// Names returns all registered dataset names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sets))
	for n := range r.sets {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
