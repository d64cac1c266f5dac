// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from pipeline runs.
//
// It exposes a narrow Backend interface (counters plus duration
// observations) behind a global, pluggable backend that defaults to a
// no-op, so instrumentation is always safe to call even when no real
// backend is configured. Concrete metric systems live in subpackages,
// mirroring the storage factory pattern.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveDuration records a duration-style value in seconds.
	ObserveDuration(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it.
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)      {}
func (nopBackend) ObserveDuration(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                              { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures one step execution: latency plus terminal status
// (Succeeded, Failed, Skipped).
func RecordStep(pipeline, step, status string, d time.Duration) {
	lbls := Labels{
		"pipeline": pipeline,
		"step":     step,
		"status":   status,
	}
	backend.IncCounter("pipeline_step_total", 1, lbls)
	backend.ObserveDuration("pipeline_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows counts the rows a step produced or wrote.
func RecordRows(pipeline, step string, rows int64) {
	if rows <= 0 {
		return
	}
	backend.IncCounter("pipeline_rows_total", float64(rows), Labels{
		"pipeline": pipeline,
		"step":     step,
	})
}
