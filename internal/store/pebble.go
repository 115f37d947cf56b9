package store

import (
	"context"
	"errors"
	"time"

	pebblestore "github.com/rzbill/vary/internal/storage/pebble"
)

// Pebble is the server-side shared Store, persisted in the local Pebble
// database. Each (experiment, subject) key is an independent record; there
// is no global lock. This is the backend the remote store's clients talk to.
type Pebble struct {
	db  *pebblestore.DB
	now func() time.Time
}

// NewPebble creates a Store over an open Pebble wrapper.
func NewPebble(db *pebblestore.DB) *Pebble {
	return &Pebble{db: db, now: time.Now}
}

// Key layout: asg/{experiment}/{subject}, with each segment escaped so ids
// containing "/" cannot collide.
func pebbleKey(experimentID, subjectID string) []byte {
	exp, subj := escapeKeySegment(experimentID), escapeKeySegment(subjectID)
	k := make([]byte, 0, 4+len(exp)+1+len(subj))
	k = append(k, "asg/"...)
	k = append(k, exp...)
	k = append(k, '/')
	k = append(k, subj...)
	return k
}

// Get implements Store. Expired records are deleted best-effort.
func (p *Pebble) Get(_ context.Context, experimentID, subjectID string) (Assignment, bool, error) {
	b, err := p.db.Get(pebbleKey(experimentID, subjectID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Assignment{}, false, nil
		}
		return Assignment{}, false, err
	}
	a, ok := decodeAssignment(b)
	if !ok {
		return Assignment{}, false, nil
	}
	if a.Expired(p.now()) {
		_ = p.db.Delete(pebbleKey(experimentID, subjectID))
		return Assignment{}, false, nil
	}
	return a, true, nil
}

// Set implements Store.
func (p *Pebble) Set(_ context.Context, a Assignment) error {
	return p.db.Set(pebbleKey(a.ExperimentID, a.SubjectID), encodeAssignment(a))
}

// Clear implements Store.
func (p *Pebble) Clear(_ context.Context, experimentID, subjectID string) error {
	return p.db.Delete(pebbleKey(experimentID, subjectID))
}
