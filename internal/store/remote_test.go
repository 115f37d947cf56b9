package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// assignmentServer is a minimal in-memory stand-in for a shared vary server.
type assignmentServer struct {
	mu      sync.Mutex
	records map[string]Assignment
}

func newAssignmentServer() *assignmentServer {
	return &assignmentServer{records: map[string]Assignment{}}
}

func (s *assignmentServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/assignments", func(w http.ResponseWriter, r *http.Request) {
		var a Assignment
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.records[a.ExperimentID+"/"+a.SubjectID] = a
		s.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("GET /v1/assignments/{experiment}/{subject}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		a, ok := s.records[r.PathValue("experiment")+"/"+r.PathValue("subject")]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(a)
	})
	mux.HandleFunc("DELETE /v1/assignments/{experiment}/{subject}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		delete(s.records, r.PathValue("experiment")+"/"+r.PathValue("subject"))
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func TestRemoteRoundTrip(t *testing.T) {
	backend := newAssignmentServer()
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	r := NewRemote(srv.URL, srv.Client())
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	a := Assignment{ExperimentID: "e1", SubjectID: "s1", VariantID: "treatment", AssignedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := r.Set(ctx, a); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := r.Get(ctx, "e1", "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.VariantID != "treatment" {
		t.Fatalf("variant: %q", got.VariantID)
	}

	if err := r.Clear(ctx, "e1", "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := r.Get(ctx, "e1", "s1"); ok {
		t.Fatalf("expected absent after clear")
	}
}

func TestRemoteAbsentIsNotError(t *testing.T) {
	srv := httptest.NewServer(newAssignmentServer().handler())
	defer srv.Close()

	r := NewRemote(srv.URL, srv.Client())
	if _, ok, err := r.Get(context.Background(), "e1", "nobody"); ok || err != nil {
		t.Fatalf("404 must read as absent: ok=%v err=%v", ok, err)
	}
}

func TestRemoteStaleRecordBehavesAbsent(t *testing.T) {
	// A server that never enforces expiry and serves the record as stored.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Assignment{
			ExperimentID: "e1", SubjectID: "s1", VariantID: "v",
			AssignedAt: time.Now().Add(-48 * time.Hour),
			ExpiresAt:  time.Now().Add(-time.Hour),
		})
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, srv.Client())
	if _, ok, err := r.Get(context.Background(), "e1", "s1"); ok || err != nil {
		t.Fatalf("expired record must read as absent: ok=%v err=%v", ok, err)
	}
}

func TestRemoteServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, srv.Client())
	if _, _, err := r.Get(context.Background(), "e1", "s1"); err == nil {
		t.Fatalf("expected error for 500")
	}
	if err := r.Set(context.Background(), Assignment{ExperimentID: "e1", SubjectID: "s1", VariantID: "v"}); err == nil {
		t.Fatalf("expected error for 500 on set")
	}
}

func TestRemoteUnreachable(t *testing.T) {
	r := NewRemote("http://127.0.0.1:1", &http.Client{Timeout: 100 * time.Millisecond})
	if _, _, err := r.Get(context.Background(), "e1", "s1"); err == nil {
		t.Fatalf("expected connection error")
	}
}
