// Package errs defines the pipeline's error taxonomy. Every failure a step
// handler can produce is tagged with a Kind; the runner converts tagged
// errors into step results and uses the kind to decide retry eligibility.
// Only config errors escape this scheme: they abort before any step runs.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a step failure. Kinds are stable strings so they can be
// carried into results, log lines, and metrics labels unchanged.
type Kind string

const (
	KindConfig              Kind = "config"
	KindUnknownDataset      Kind = "unknown_dataset"
	KindDuplicateDataset    Kind = "duplicate_dataset"
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindUnsupportedStepType Kind = "unsupported_step_type"
	KindSchemaMismatch      Kind = "schema_mismatch"
	KindUnknownColumn       Kind = "unknown_column"
	KindValidationMismatch  Kind = "validation_mismatch"
	KindTimeout             Kind = "timeout"
	KindIO                  Kind = "io"
)

// Error is a kind-tagged pipeline error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// New constructs a tagged error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error with a kind and context message. A nil err
// returns nil so call sites can wrap unconditionally.
func Wrap(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain. Untagged errors report
// KindIO: anything a handler did not classify came from an external
// collaborator (file, socket, database driver) and is treated as transient.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err != nil {
		return KindIO
	}
	return ""
}

// IsTransient reports whether the error should be retried. Only raw I/O
// failures qualify; logic errors are permanent, and a timeout has already
// consumed its step budget.
func IsTransient(err error) bool {
	return KindOf(err) == KindIO
}
