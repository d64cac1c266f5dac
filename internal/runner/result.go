package runner

import (
	"time"

	"declpipe/internal/errs"
)

// Status is a step's position in its lifecycle. Every step ends in exactly
// one of the three terminal states.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusRunning   Status = "Running"
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
	StatusSkipped   Status = "Skipped"
)

// StepResult records one step's terminal state.
type StepResult struct {
	StepName  string    `json:"step_name"`
	Status    Status    `json:"status"`
	ErrorKind errs.Kind `json:"error_kind,omitempty"`
	Message   string    `json:"message,omitempty"`
	Rows      int64     `json:"rows"`
	Attempts  int       `json:"attempts"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Duration is the step's wall-clock time.
func (s StepResult) Duration() time.Duration { return s.EndedAt.Sub(s.StartedAt) }

// PipelineResult is the outcome of a whole run. Steps appear in execution
// order and cover every configured step, including skipped ones.
type PipelineResult struct {
	RunID     string       `json:"run_id"`
	Pipeline  string       `json:"pipeline"`
	Status    Status       `json:"status"`
	Steps     []StepResult `json:"steps"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   time.Time    `json:"ended_at"`

	// HardFailure marks failures that warrant a non-zero exit: any
	// non-validation step failure, or a validation failure when
	// on_validation_failure is abort.
	HardFailure bool `json:"hard_failure"`
}
