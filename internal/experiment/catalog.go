package experiment

import (
	"sort"
	"sync"
	"time"
)

// Catalog is an in-memory registry of experiment definitions. It is
// read-mostly: lookups take a read lock while administrative mutations
// clone the underlying map and swap it, so in-flight readers never observe
// a half-updated experiment. Experiments are immutable once loaded.
type Catalog struct {
	mu   sync.RWMutex
	byID map[string]*Experiment
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{byID: map[string]*Experiment{}}
}

// Load merges the given experiments into the registry, replacing entries
// with matching ids. It is idempotent: loading the same definitions twice
// leaves the catalog unchanged. Definitions are cloned, then validated and
// normalized, before any of them become visible; caller-owned structs are
// never mutated, so re-loading a pointer already in the catalog is safe.
func (c *Catalog) Load(exps []*Experiment) error {
	prepared := make([]*Experiment, 0, len(exps))
	for _, e := range exps {
		if err := e.validate(); err != nil {
			return err
		}
		ce := e.clone()
		if err := ce.normalize(); err != nil {
			return err
		}
		prepared = append(prepared, ce)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make(map[string]*Experiment, len(c.byID)+len(prepared))
	for id, e := range c.byID {
		next[id] = e
	}
	for _, e := range prepared {
		next[e.ID] = e
	}
	c.byID = next
	return nil
}

// Get returns the experiment with the given id. Unknown ids are not an
// error; callers treat absent as "no experiment, no assignment".
func (c *Catalog) Get(id string) (*Experiment, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	return e, ok
}

// List returns every registered experiment, sorted by id.
func (c *Catalog) List() []*Experiment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Experiment, 0, len(c.byID))
	for _, e := range c.byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListActive returns experiments active at the given instant, sorted by id.
func (c *Catalog) ListActive(now time.Time) []*Experiment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Experiment, 0, len(c.byID))
	for _, e := range c.byID {
		if e.ActiveAt(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update replaces (or inserts) a single experiment definition. Not on the
// hot assignment path; does not require restarting the engine.
func (c *Catalog) Update(e *Experiment) error {
	return c.Load([]*Experiment{e})
}

// Remove deletes an experiment definition. Removing an unknown id is a no-op.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byID[id]; !ok {
		return
	}
	next := make(map[string]*Experiment, len(c.byID)-1)
	for k, e := range c.byID {
		if k != id {
			next[k] = e
		}
	}
	c.byID = next
}

// Len returns the number of registered experiments.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}
