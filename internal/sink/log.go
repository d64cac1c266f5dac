// Package sink holds the run-output sinks: the append-only execution log
// and the dataset lineage recorder. Both come in writer-backed and
// in-memory flavors; the in-memory ones double as test fakes.
package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogSink records one line per step state transition, in execution order.
type LogSink interface {
	Record(ts time.Time, step, status, message string) error
	Close() error
}

// logLine renders the fixed transition-line layout.
func logLine(ts time.Time, step, status, message string) string {
	return fmt.Sprintf("%s %s %s %s\n", ts.UTC().Format(time.RFC3339), step, status, message)
}

// WriterLog appends transition lines to an io.Writer. Writes are serialized
// so concurrent steps cannot interleave lines.
type WriterLog struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewWriterLog wraps a writer. If w is also an io.Closer, Close closes it.
func NewWriterLog(w io.Writer) *WriterLog {
	l := &WriterLog{w: w}
	if c, ok := w.(io.Closer); ok {
		l.c = c
	}
	return l
}

// NewFileLog opens (or creates) path for appending.
func NewFileLog(path string) (*WriterLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log sink %s: %w", path, err)
	}
	return NewWriterLog(f), nil
}

func (l *WriterLog) Record(ts time.Time, step, status, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.w, logLine(ts, step, status, message)); err != nil {
		return fmt.Errorf("log sink: %w", err)
	}
	return nil
}

func (l *WriterLog) Close() error {
	if l.c != nil {
		return l.c.Close()
	}
	return nil
}

// MemoryLog keeps the transition lines in memory.
type MemoryLog struct {
	mu    sync.Mutex
	lines []string
}

func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

func (l *MemoryLog) Record(ts time.Time, step, status, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine(ts, step, status, message))
	return nil
}

func (l *MemoryLog) Close() error { return nil }

// Lines returns a copy of the recorded lines in execution order.
func (l *MemoryLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}
