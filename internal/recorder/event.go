package recorder

import (
	"strings"
	"time"
)

// Event is a single exposure or conversion occurrence. Events are
// append-only and immutable once recorded. SubjectID is optional so
// anonymous sessions can be tracked; Metadata is a schema-free payload
// interpreted by the analytics consumer.
type Event struct {
	ID           string                 `json:"id,omitempty"`
	ExperimentID string                 `json:"experimentId"`
	VariantID    string                 `json:"variantId"`
	SubjectID    string                 `json:"subjectId,omitempty"`
	SessionID    string                 `json:"sessionId"`
	Event        string                 `json:"event"`
	Value        float64                `json:"value,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// ValidationError reports the required fields missing from an event. It is
// surfaced synchronously to the TrackEvent caller, before any write attempt.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "recorder: event missing required fields: " + strings.Join(e.Missing, ", ")
}

// Validate checks required fields.
func (ev *Event) Validate() error {
	var missing []string
	if ev.ExperimentID == "" {
		missing = append(missing, "experimentId")
	}
	if ev.VariantID == "" {
		missing = append(missing, "variantId")
	}
	if ev.SessionID == "" {
		missing = append(missing, "sessionId")
	}
	if ev.Event == "" {
		missing = append(missing, "event")
	}
	if ev.Timestamp.IsZero() {
		missing = append(missing, "timestamp")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
