package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rzbill/vary/internal/config"
	pebblestore "github.com/rzbill/vary/internal/storage/pebble"
)

// Assignment is a sticky variant assignment for one (experiment, subject)
// key. Records are never mutated in place; expiry makes them absent.
type Assignment struct {
	ExperimentID string    `json:"experimentId"`
	SubjectID    string    `json:"subjectId"`
	VariantID    string    `json:"variantId"`
	AssignedAt   time.Time `json:"assignedAt"`
	ExpiresAt    time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the record is past its expiry at the given
// instant. A zero ExpiresAt never expires.
func (a Assignment) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}

// Store is the sticky-assignment persistence contract.
//
// Expired entries behave identically to absent entries. Set is idempotent:
// re-setting the same key/value is a no-op. Implementations must not block
// operations on different keys against each other.
type Store interface {
	// Get returns the assignment for the key, or ok=false when absent or
	// expired.
	Get(ctx context.Context, experimentID, subjectID string) (Assignment, bool, error)
	// Set persists an assignment. The TTL is carried in ExpiresAt.
	Set(ctx context.Context, a Assignment) error
	// Clear removes an assignment, forcing a fresh computation next time.
	Clear(ctx context.Context, experimentID, subjectID string) error
}

// BackendOptions carries the backend-specific dependencies for ForBackend.
type BackendOptions struct {
	// DB backs the pebble (server-side) store.
	DB *pebblestore.DB
	// KV backs the client-held store.
	KV KV
	// CookiePrefix namespaces client-held keys.
	CookiePrefix string
	// RemoteURL and HTTPClient configure the remote store.
	RemoteURL  string
	HTTPClient *http.Client
}

// ForBackend selects a Store implementation by configuration name.
func ForBackend(backend string, opts BackendOptions) (Store, error) {
	switch backend {
	case "", config.BackendPebble:
		if opts.DB == nil {
			return nil, fmt.Errorf("store: pebble backend requires a DB")
		}
		return NewPebble(opts.DB), nil
	case config.BackendEphemeral:
		return NewMemory(), nil
	case config.BackendClient:
		if opts.KV == nil {
			return nil, fmt.Errorf("store: client backend requires a KV")
		}
		return NewClient(opts.KV, opts.CookiePrefix), nil
	case config.BackendRemote:
		if opts.RemoteURL == "" {
			return nil, fmt.Errorf("store: remote backend requires a URL")
		}
		return NewRemote(opts.RemoteURL, opts.HTTPClient), nil
	}
	return nil, fmt.Errorf("store: unknown backend %q", backend)
}

// keySegmentEscaper escapes the separator characters used by the backends
// (plus "%" so escaping stays injective). Experiment and subject ids are
// arbitrary strings; without this, ("a","b/c") and ("a/b","c") would share
// one record.
var keySegmentEscaper = strings.NewReplacer("%", "%25", "/", "%2F", ".", "%2E", "|", "%7C")

func escapeKeySegment(s string) string { return keySegmentEscaper.Replace(s) }

func encodeAssignment(a Assignment) []byte {
	b, _ := json.Marshal(a)
	return b
}

func decodeAssignment(b []byte) (Assignment, bool) {
	var a Assignment
	if err := json.Unmarshal(b, &a); err != nil {
		return Assignment{}, false
	}
	return a, true
}
