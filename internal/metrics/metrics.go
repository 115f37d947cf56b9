// Package metrics exposes Prometheus collectors for the assignment engine,
// stores, and event recorder. Collectors are package-level and registered
// once on the default registry; the HTTP server serves them at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons for a null assignment, used as the "reason" label on
// AssignmentMisses.
const (
	ReasonDisabled   = "disabled"
	ReasonNotFound   = "not_found"
	ReasonInactive   = "inactive"
	ReasonIneligible = "ineligible"
	ReasonRollout    = "rollout"
)

var (
	// AssignmentsTotal counts resolved assignments per experiment/variant,
	// split by whether they were sticky reads or fresh computations.
	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vary_assignments_total",
			Help: "Variant assignments resolved, by experiment, variant and source",
		},
		[]string{"experiment", "variant", "source"},
	)

	// AssignmentMisses counts assign calls that resolved to no assignment.
	AssignmentMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vary_assignment_misses_total",
			Help: "Assign calls resolving to no assignment, by reason",
		},
		[]string{"reason"},
	)

	// StoreFailures counts fail-soft store errors on the assign path.
	StoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vary_store_failures_total",
			Help: "Assignment store operations that failed soft, by operation",
		},
		[]string{"op"},
	)

	// EventsRecorded counts tracking events accepted and written to the sink.
	EventsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vary_events_recorded_total",
			Help: "Tracking events written to the event sink",
		},
	)

	// EventsDropped counts accepted events lost to queue overflow or sink
	// failure.
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vary_events_dropped_total",
			Help: "Tracking events dropped after acceptance (queue full or sink failure)",
		},
	)

	// EventsRejected counts events failing validation.
	EventsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vary_events_rejected_total",
			Help: "Tracking events rejected by validation",
		},
	)
)
