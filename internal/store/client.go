package store

import (
	"context"
	"time"
)

// KV is the minimal key-value surface a caller-held store must provide.
// The canonical implementation lives with the caller across requests
// (cookies or equivalent client-side persistence); TTLs are advisory and
// expiry is enforced here as well.
type KV interface {
	Get(key string) (string, bool)
	Set(key, value string, ttl time.Duration)
	Delete(key string)
}

// Client is a Store backed by a caller-held KV. Keys are namespaced with a
// configurable prefix so multiple engines can share one KV.
type Client struct {
	kv     KV
	prefix string
	now    func() time.Time
}

// NewClient wraps the given KV. An empty prefix defaults to "vary_".
func NewClient(kv KV, prefix string) *Client {
	if prefix == "" {
		prefix = "vary_"
	}
	return &Client{kv: kv, prefix: prefix, now: time.Now}
}

func (c *Client) key(experimentID, subjectID string) string {
	return c.prefix + escapeKeySegment(experimentID) + "." + escapeKeySegment(subjectID)
}

// Get implements Store.
func (c *Client) Get(_ context.Context, experimentID, subjectID string) (Assignment, bool, error) {
	raw, ok := c.kv.Get(c.key(experimentID, subjectID))
	if !ok {
		return Assignment{}, false, nil
	}
	a, ok := decodeAssignment([]byte(raw))
	if !ok {
		// Corrupt client-side state; treat as absent.
		c.kv.Delete(c.key(experimentID, subjectID))
		return Assignment{}, false, nil
	}
	if a.Expired(c.now()) {
		c.kv.Delete(c.key(experimentID, subjectID))
		return Assignment{}, false, nil
	}
	return a, true, nil
}

// Set implements Store.
func (c *Client) Set(_ context.Context, a Assignment) error {
	ttl := time.Duration(0)
	if !a.ExpiresAt.IsZero() {
		ttl = a.ExpiresAt.Sub(c.now())
	}
	c.kv.Set(c.key(a.ExperimentID, a.SubjectID), string(encodeAssignment(a)), ttl)
	return nil
}

// Clear implements Store.
func (c *Client) Clear(_ context.Context, experimentID, subjectID string) error {
	c.kv.Delete(c.key(experimentID, subjectID))
	return nil
}
