package recorder

import (
	"context"
	"sync"
)

// Sink is the append-only destination for accepted events. Read returns the
// raw, unaggregated stream for one experiment in append order.
type Sink interface {
	Append(ctx context.Context, ev Event) error
	Read(ctx context.Context, experimentID string) ([]Event, error)
}

// MemorySink keeps events in process memory. Used for tests and ephemeral
// deployments.
type MemorySink struct {
	mu     sync.Mutex
	events map[string][]Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: map[string][]Event{}}
}

// Append implements Sink.
func (s *MemorySink) Append(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ExperimentID] = append(s.events[ev.ExperimentID], ev)
	return nil
}

// Read implements Sink.
func (s *MemorySink) Read(_ context.Context, experimentID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events[experimentID]...), nil
}
