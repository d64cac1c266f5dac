package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Edge is one lineage fact: the consuming step read a dataset produced by
// another step. Seeded inputs have an empty ProducingStep.
type Edge struct {
	ProducingStep string `json:"producing_step"`
	Dataset       string `json:"dataset"`
	ConsumingStep string `json:"consuming_step"`
}

// LineageSink records dataset lineage edges as they are observed.
type LineageSink interface {
	Record(e Edge) error
	Close() error
}

// WriterLineage emits one JSON object per edge, newline-delimited.
type WriterLineage struct {
	mu  sync.Mutex
	enc *json.Encoder
	c   io.Closer
}

// NewWriterLineage wraps a writer. If w is also an io.Closer, Close closes it.
func NewWriterLineage(w io.Writer) *WriterLineage {
	l := &WriterLineage{enc: json.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		l.c = c
	}
	return l
}

// NewFileLineage opens (or creates) path for appending.
func NewFileLineage(path string) (*WriterLineage, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lineage sink %s: %w", path, err)
	}
	return NewWriterLineage(f), nil
}

func (l *WriterLineage) Record(e Edge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(e); err != nil {
		return fmt.Errorf("lineage sink: %w", err)
	}
	return nil
}

func (l *WriterLineage) Close() error {
	if l.c != nil {
		return l.c.Close()
	}
	return nil
}

// MemoryLineage collects edges in memory.
type MemoryLineage struct {
	mu    sync.Mutex
	edges []Edge
}

func NewMemoryLineage() *MemoryLineage { return &MemoryLineage{} }

func (l *MemoryLineage) Record(e Edge) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.edges = append(l.edges, e)
	return nil
}

func (l *MemoryLineage) Close() error { return nil }

// Edges returns a copy of the recorded edges in observation order.
func (l *MemoryLineage) Edges() []Edge {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Edge, len(l.edges))
	copy(out, l.edges)
	return out
}
