package store

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

// Memory is a process-local Store with TTL semantics. Data is lost on
// restart; it serves as the ephemeral backend and as a last-resort fallback.
// The underlying map is lock-free per key, so operations on different keys
// never block each other.
type Memory struct {
	entries *xsync.Map[string, Assignment]
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: xsync.NewMap[string, Assignment](), now: time.Now}
}

func memKey(experimentID, subjectID string) string {
	return escapeKeySegment(experimentID) + "|" + escapeKeySegment(subjectID)
}

// Get implements Store. Expired entries are removed lazily.
func (m *Memory) Get(_ context.Context, experimentID, subjectID string) (Assignment, bool, error) {
	key := memKey(experimentID, subjectID)
	a, ok := m.entries.Load(key)
	if !ok {
		return Assignment{}, false, nil
	}
	if a.Expired(m.now()) {
		m.entries.Delete(key)
		return Assignment{}, false, nil
	}
	return a, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, a Assignment) error {
	m.entries.Store(memKey(a.ExperimentID, a.SubjectID), a)
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context, experimentID, subjectID string) error {
	m.entries.Delete(memKey(experimentID, subjectID))
	return nil
}

// Sweep removes all expired entries and returns how many were dropped.
// Optional housekeeping; Get already treats expired entries as absent.
func (m *Memory) Sweep() int {
	now := m.now()
	dropped := 0
	m.entries.Range(func(key string, a Assignment) bool {
		if a.Expired(now) {
			m.entries.Delete(key)
			dropped++
		}
		return true
	})
	return dropped
}

// Len returns the number of live entries, including not-yet-swept expired ones.
func (m *Memory) Len() int { return m.entries.Size() }
