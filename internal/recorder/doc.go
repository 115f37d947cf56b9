// Package recorder implements the append-only exposure/conversion event
// sink.
//
// # Overview
//
// TrackEvent validates required fields synchronously and rejects malformed
// events with a *ValidationError; accepted events are submitted to a bounded
// queue drained by a background worker. Sink failures and queue overflow are
// best-effort losses: logged, counted, never raised to the caller. Results
// returns the raw per-experiment stream; statistics live elsewhere.
//
// Two sinks are provided: MemorySink for tests and ephemeral use, and
// PebbleSink, a crc-framed per-experiment append-only log on Pebble.
package recorder
