// Package config defines the canonical, declarative configuration model for
// pipeline runs and the loader that turns a JSON or YAML document into it.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Purity: loading is deterministic and order-preserving; the same
//     document always yields the same PipelineConfig, defaults included.
//  3. Immutability: once loaded, StepDefinition and PipelineConfig are never
//     mutated by the rest of the program.
//
// Example (trimmed):
//
//	pipeline: orders_daily
//	on_step_failure: skip_dependents
//	steps:
//	  - name: pull_orders
//	    type: extract
//	    params: { source: testdata/orders.csv, target: orders }
//	  - name: big_orders
//	    type: transform
//	    subtype: filter
//	    params: { source: orders, condition: "amount > 1000", target: big }
package config

import (
	"time"
)

// StepType is the closed set of step kinds the dispatcher recognizes.
type StepType string

const (
	StepExtract   StepType = "extract"
	StepTransform StepType = "transform"
	StepValidate  StepType = "validate"
	StepLoad      StepType = "load"
)

// Transform subtypes.
const (
	SubtypeJoin      = "join"
	SubtypeFilter    = "filter"
	SubtypeDedup     = "dedup"
	SubtypeNormalize = "normalize"
)

// FailurePolicy governs what a failed step does to the rest of the run.
type FailurePolicy string

const (
	// FailAbort halts the run; steps after the failure are recorded Skipped.
	FailAbort FailurePolicy = "abort"
	// FailSkipDependents cascades Skipped to downstream consumers only;
	// independent later steps still run.
	FailSkipDependents FailurePolicy = "skip_dependents"
)

// ValidationPolicy governs whether a failed validate step aborts the run.
type ValidationPolicy string

const (
	ValidationAbort    ValidationPolicy = "abort"
	ValidationContinue ValidationPolicy = "continue"
)

// StepDefinition is one declared unit of work. Immutable once loaded.
type StepDefinition struct {
	Name    string   `json:"name" yaml:"name"`
	Type    StepType `json:"type" yaml:"type"`
	Subtype string   `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Params  Options  `json:"params" yaml:"params"`

	// DeclaredOrder is the zero-based position in the document. Set by the
	// loader, not from the document.
	DeclaredOrder int `json:"-" yaml:"-"`
}

// PipelineConfig is the loaded form of one declarative document.
type PipelineConfig struct {
	Name                string           `json:"pipeline" yaml:"pipeline"`
	OnStepFailure       FailurePolicy    `json:"on_step_failure,omitempty" yaml:"on_step_failure,omitempty"`
	OnValidationFailure ValidationPolicy `json:"on_validation_failure,omitempty" yaml:"on_validation_failure,omitempty"`

	// Inputs names datasets that exist before the run starts (seeded by the
	// caller). Steps may consume them without a producing step.
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`

	Steps []StepDefinition `json:"steps" yaml:"steps"`
}

// Consumes returns the dataset names this step resolves from the registry.
func (s StepDefinition) Consumes() []string {
	switch s.Type {
	case StepTransform:
		if s.Subtype == SubtypeJoin {
			return []string{s.Params.String("left", ""), s.Params.String("right", "")}
		}
		return []string{s.Params.String("source", "")}
	case StepValidate, StepLoad:
		return []string{s.Params.String("source", "")}
	}
	return nil
}

// Produces returns the dataset name this step materializes, or "" when the
// step produces none (validate, load).
func (s StepDefinition) Produces() string {
	switch s.Type {
	case StepExtract, StepTransform:
		return s.Params.String("target", "")
	}
	return ""
}

// Timeout returns the per-step collaborator timeout, zero when unset.
func (s StepDefinition) Timeout() time.Duration {
	return s.Params.Duration("timeout", 0)
}
