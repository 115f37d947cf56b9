// Package store provides sticky-assignment persistence behind a single
// Store contract with interchangeable backends:
//
//   - Memory: process-local TTL map (ephemeral fallback)
//   - Client: caller-held key-value state (cookie-style), prefix-namespaced
//   - Remote: HTTP client against a shared vary server
//   - Pebble: the server-side shared backend itself
//
// All backends agree on the contract: expired entries behave exactly like
// absent entries, Set is idempotent, and operations on different keys never
// block each other. ForBackend selects an implementation from configuration.
package store
