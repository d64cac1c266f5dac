// This file implements a lightweight linter/validator for PipelineConfig
// values. It performs static checks over a decoded document and returns a
// list of issues (errors and warnings) that callers can surface in a CLI
// (-dry-run) or tests. Error-severity issues block execution.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced but not fatal.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding.
//
// Path is a dotted path into the config (e.g. "steps[1].params.target").
// Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a
// single error where convenient.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

var validStepTypes = map[StepType]bool{
	StepExtract:   true,
	StepTransform: true,
	StepValidate:  true,
	StepLoad:      true,
}

var validSubtypes = map[string]bool{
	SubtypeJoin:      true,
	SubtypeFilter:    true,
	SubtypeDedup:     true,
	SubtypeNormalize: true,
}

var validJoinTypes = map[string]bool{
	"inner": true, "left": true, "right": true, "full": true,
}

var validLoadModes = map[string]bool{
	"overwrite": true, "append": true,
}

// requiredParams maps (type, subtype) onto the params a step must declare.
var requiredParams = map[string][]string{
	"extract":             {"source", "target"},
	"transform/join":      {"left", "right", "join_col", "target"},
	"transform/filter":    {"source", "condition", "target"},
	"transform/dedup":     {"source", "keys", "target"},
	"transform/normalize": {"source", "target"},
	"validate":            {"source", "expected_columns"},
	"load":                {"source", "target"},
}

// Lint performs static validation of a pipeline document. It does not
// mutate the config; it returns a slice of findings for the caller to act
// on. Load treats error-severity findings as fatal.
func Lint(p *PipelineConfig) []Issue {
	var issues []Issue

	if len(p.Steps) == 0 {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "steps",
			Message:  "pipeline has no steps",
		})
	}

	if p.OnStepFailure != FailAbort && p.OnStepFailure != FailSkipDependents {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "on_step_failure",
			Message:  fmt.Sprintf("unknown policy %q (valid: abort, skip_dependents)", p.OnStepFailure),
		})
	}
	if p.OnValidationFailure != ValidationAbort && p.OnValidationFailure != ValidationContinue {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "on_validation_failure",
			Message:  fmt.Sprintf("unknown policy %q (valid: abort, continue)", p.OnValidationFailure),
		})
	}

	names := make(map[string]int)

	// available tracks dataset names a later step may legally consume:
	// declared run inputs plus targets of earlier steps.
	available := make(map[string]bool, len(p.Inputs))
	for _, in := range p.Inputs {
		available[in] = true
	}

	for i, step := range p.Steps {
		path := fmt.Sprintf("steps[%d]", i)

		if step.Name == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".name", Message: "name is required"})
		}
		if prev, exists := names[step.Name]; exists && step.Name != "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".name",
				Message:  fmt.Sprintf("duplicate step name %q (first defined at step %d)", step.Name, prev),
			})
		}
		names[step.Name] = i

		if !validStepTypes[step.Type] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".type",
				Message:  fmt.Sprintf("unknown type %q (valid: extract, transform, validate, load)", step.Type),
			})
			continue
		}

		issues = append(issues, lintStep(step, path, available)...)

		if target := step.Produces(); target != "" {
			if available[target] {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".params.target",
					Message:  fmt.Sprintf("dataset %q already produced earlier in this run (write-once per name)", target),
				})
			}
			available[target] = true
		}
	}

	return issues
}

func lintStep(step StepDefinition, path string, available map[string]bool) []Issue {
	var issues []Issue

	key := string(step.Type)
	if step.Type == StepTransform {
		if !validSubtypes[step.Subtype] {
			return append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".subtype",
				Message:  fmt.Sprintf("unknown transform subtype %q (valid: join, filter, dedup, normalize)", step.Subtype),
			})
		}
		key += "/" + step.Subtype
	}

	for _, param := range requiredParams[key] {
		if !step.Params.Has(param) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("%s.params.%s", path, param),
				Message:  fmt.Sprintf("%s step requires param %q", key, param),
			})
		}
	}

	// Kind-specific value checks.
	switch {
	case step.Type == StepTransform && step.Subtype == SubtypeJoin:
		if jt := step.Params.String("join_type", "inner"); !validJoinTypes[jt] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".params.join_type",
				Message:  fmt.Sprintf("unknown join_type %q (valid: inner, left, right, full)", jt),
			})
		}
	case step.Type == StepTransform && step.Subtype == SubtypeFilter:
		if strings.TrimSpace(step.Params.String("condition", "")) == "" && step.Params.Has("condition") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".params.condition",
				Message:  "filter condition must not be empty",
			})
		}
	case step.Type == StepLoad:
		if mode := step.Params.String("mode", "overwrite"); !validLoadModes[mode] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".params.mode",
				Message:  fmt.Sprintf("unknown mode %q (valid: overwrite, append)", mode),
			})
		}
	case step.Type == StepValidate:
		if step.Params.Has("expected_columns") && len(step.Params.StringSlice("expected_columns")) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".params.expected_columns",
				Message:  "expected_columns must be a non-empty list of column names",
			})
		}
	}

	// Ordering rule: a step may only reference dataset names produced by
	// earlier steps or declared as run inputs.
	for _, name := range step.Consumes() {
		if name == "" {
			continue // missing param already reported above
		}
		if !available[name] {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".params",
				Message:  fmt.Sprintf("dataset %q is not produced by an earlier step and is not a declared input", name),
			})
		}
	}

	if step.Params.Has("timeout") && step.Params.Duration("timeout", 0) <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     path + ".params.timeout",
			Message:  fmt.Sprintf("timeout %q is not a valid duration; it will be ignored", step.Params.String("timeout", "")),
		})
	}

	return issues
}
