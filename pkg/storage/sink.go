package storage

import (
	"context"
	"fmt"
	"sync"

	"igengage/pkg/config"
	"igengage/pkg/engagement"
)

// Sink receives every result exactly once. Order is not significant.
// Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, result engagement.Result) error
	Close() error
}

// New builds the sink selected by cfg.Sink
func New(ctx context.Context, cfg config.OutputConfig, runID string) (Sink, error) {
	switch cfg.Sink {
	case config.SinkJSONL:
		return NewJSONLSink(cfg.Path)
	case config.SinkCSV:
		return NewCSVSink(cfg.Path)
	case config.SinkPostgres:
		return OpenPostgresSink(ctx, cfg.DatabaseURL, cfg.Table, runID)
	case config.SinkNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

// MemorySink keeps results in memory
type MemorySink struct {
	mu      sync.Mutex
	results []engagement.Result
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores result
func (m *MemorySink) Append(ctx context.Context, result engagement.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	return nil
}

// Results returns a copy of everything appended so far
func (m *MemorySink) Results() []engagement.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]engagement.Result, len(m.results))
	copy(out, m.results)
	return out
}

// Close is a no-op
func (m *MemorySink) Close() error { return nil }

// Discard drops every result
type Discard struct{}

// Append does nothing
func (Discard) Append(ctx context.Context, result engagement.Result) error { return nil }

// Close does nothing
func (Discard) Close() error { return nil }
