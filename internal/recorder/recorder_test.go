package recorder

import (
	"context"
	"errors"
	"testing"
	"time"
)

func validEvent() Event {
	return Event{
		ExperimentID: "exp-1",
		VariantID:    "control",
		SessionID:    "sess-1",
		Event:        "page_view",
		Timestamp:    time.Now(),
	}
}

func TestTrackEventValidation(t *testing.T) {
	r := New(NewMemorySink(), Options{})
	defer r.Close()

	ev := validEvent()
	ev.SessionID = ""
	err := r.TrackEvent(ev)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Missing) != 1 || verr.Missing[0] != "sessionId" {
		t.Fatalf("missing fields: %v", verr.Missing)
	}
}

func TestTrackEventAllRequiredFields(t *testing.T) {
	r := New(NewMemorySink(), Options{})
	defer r.Close()

	err := r.TrackEvent(Event{})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	want := []string{"experimentId", "variantId", "sessionId", "event", "timestamp"}
	if len(verr.Missing) != len(want) {
		t.Fatalf("missing fields: %v, want %v", verr.Missing, want)
	}
}

func TestTrackEventRoundTrip(t *testing.T) {
	sink := NewMemorySink()
	r := New(sink, Options{})

	ev := validEvent()
	ev.SubjectID = "s1"
	ev.Value = 9.5
	ev.Metadata = map[string]interface{}{"page": "/checkout"}
	if err := r.TrackEvent(ev); err != nil {
		t.Fatalf("track: %v", err)
	}
	r.Close() // drains the queue

	events, err := r.Results(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events: %d", len(events))
	}
	got := events[0]
	if got.ID == "" {
		t.Fatalf("expected generated event id")
	}
	if got.SubjectID != "s1" || got.Value != 9.5 {
		t.Fatalf("event mismatch: %+v", got)
	}
}

// failingSink rejects every write.
type failingSink struct{}

func (failingSink) Append(context.Context, Event) error { return errors.New("sink down") }
func (failingSink) Read(context.Context, string) ([]Event, error) {
	return nil, errors.New("sink down")
}

func TestSinkFailureIsFailSoft(t *testing.T) {
	r := New(failingSink{}, Options{})
	if err := r.TrackEvent(validEvent()); err != nil {
		t.Fatalf("sink failure must not surface: %v", err)
	}
	r.Close()
}

func TestTrackAfterCloseDrops(t *testing.T) {
	r := New(NewMemorySink(), Options{})
	r.Close()
	if err := r.TrackEvent(validEvent()); err != nil {
		t.Fatalf("track after close should drop silently: %v", err)
	}
}

func TestQueueOverflowDrops(t *testing.T) {
	// A blocked sink with a tiny queue forces the overflow path.
	block := make(chan struct{})
	r := New(blockingSink{release: block}, Options{QueueSize: 1})
	for i := 0; i < 10; i++ {
		if err := r.TrackEvent(validEvent()); err != nil {
			t.Fatalf("overflow must not surface: %v", err)
		}
	}
	close(block)
	r.Close()
}

type blockingSink struct{ release chan struct{} }

func (b blockingSink) Append(context.Context, Event) error {
	<-b.release
	return nil
}
func (b blockingSink) Read(context.Context, string) ([]Event, error) { return nil, nil }
