// Package engine implements deterministic variant assignment.
//
// # Overview
//
// Assign resolves a variant for (experiment, subject, request context) in
// five steps: catalog lookup, audience eligibility (membership filters, an
// optional CEL rule, and a hashed percentage rollout), a sticky-assignment
// read, deterministic cumulative-allocation selection, and a single store
// write. Resolution never errors: unknown or inactive experiments,
// ineligible subjects, and the kill switch all resolve to "no assignment",
// and store failures degrade to an unpersisted but still-deterministic
// assignment.
//
// Buckets come from a fixed non-cryptographic string hash (see Bucket) so
// any implementation of the same contract assigns identically.
package engine
