package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rzbill/vary/internal/engine"
	"github.com/rzbill/vary/internal/experiment"
	"github.com/rzbill/vary/internal/recorder"
	"github.com/rzbill/vary/internal/runtime"
	"github.com/rzbill/vary/internal/store"
)

type Server struct {
	rt  *runtime.Runtime
	srv *http.Server
	lis net.Listener
}

func New(rt *runtime.Runtime) *Server {
	mux := http.NewServeMux()
	s := &Server{rt: rt, srv: &http.Server{Handler: cors(mux)}}
	mux.HandleFunc("GET /v1/healthz", s.handleHealth)
	mux.HandleFunc("POST /v1/assign", s.handleAssign)
	mux.HandleFunc("POST /v1/assignments", s.handleAssignmentSet)
	mux.HandleFunc("GET /v1/assignments/{experiment}/{subject}", s.handleAssignmentGet)
	mux.HandleFunc("DELETE /v1/assignments/{experiment}/{subject}", s.handleAssignmentClear)
	mux.HandleFunc("POST /v1/track", s.handleTrack)
	mux.HandleFunc("GET /v1/results/{experiment}", s.handleResults)
	mux.HandleFunc("GET /v1/config/{experiment}/{variant}", s.handleVariantConfig)
	mux.HandleFunc("GET /v1/experiments", s.handleExperimentsList)
	mux.HandleFunc("POST /v1/experiments", s.handleExperimentsLoad)
	mux.HandleFunc("DELETE /v1/experiments/{id}", s.handleExperimentRemove)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.CheckHealth(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_serving"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type assignReq struct {
	ExperimentID string         `json:"experimentId"`
	SubjectID    string         `json:"subjectId"`
	Context      engine.Context `json:"context"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ExperimentID == "" || req.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "experimentId and subjectId are required")
		return
	}
	a, ok := s.rt.Engine().Resolve(r.Context(), req.ExperimentID, req.SubjectID, req.Context)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAssignmentSet(w http.ResponseWriter, r *http.Request) {
	var a store.Assignment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if a.ExperimentID == "" || a.SubjectID == "" || a.VariantID == "" {
		writeError(w, http.StatusBadRequest, "experimentId, subjectId and variantId are required")
		return
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = time.Now()
	}
	if err := s.rt.Assignments().Set(r.Context(), a); err != nil {
		writeError(w, http.StatusInternalServerError, "persist failed")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleAssignmentGet(w http.ResponseWriter, r *http.Request) {
	expID, subjID := r.PathValue("experiment"), r.PathValue("subject")
	a, found, err := s.rt.Assignments().Get(r.Context(), expID, subjID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAssignmentClear(w http.ResponseWriter, r *http.Request) {
	expID, subjID := r.PathValue("experiment"), r.PathValue("subject")
	if err := s.rt.Assignments().Clear(r.Context(), expID, subjID); err != nil {
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var ev recorder.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.rt.Recorder().TrackEvent(ev); err != nil {
		var verr *recorder.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"error":   "missing required fields",
				"missing": verr.Missing,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "track failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type resultsResp struct {
	ExperimentID string           `json:"experimentId"`
	Events       []recorder.Event `json:"events"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	expID := r.PathValue("experiment")
	events, err := s.rt.Recorder().Results(r.Context(), expID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read failed")
		return
	}
	if events == nil {
		events = []recorder.Event{}
	}
	writeJSON(w, http.StatusOK, resultsResp{ExperimentID: expID, Events: events})
}

func (s *Server) handleVariantConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.rt.Engine().VariantConfig(r.PathValue("experiment"), r.PathValue("variant"))
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, cfg)
}

type experimentsResp struct {
	Experiments []*experiment.Experiment `json:"experiments"`
}

// handleExperimentsList returns currently active experiments, or every
// registered experiment with ?all=true.
func (s *Server) handleExperimentsList(w http.ResponseWriter, r *http.Request) {
	var exps []*experiment.Experiment
	if r.URL.Query().Get("all") == "true" {
		exps = s.rt.Catalog().List()
	} else {
		exps = s.rt.Catalog().ListActive(time.Now())
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	writeJSON(w, http.StatusOK, experimentsResp{Experiments: exps})
}

func (s *Server) handleExperimentsLoad(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	exps, err := experiment.Parse(raw)
	if err != nil {
		// Not a collection; try a single definition.
		var one experiment.Experiment
		if uerr := json.Unmarshal(raw, &one); uerr != nil || one.ID == "" {
			writeError(w, http.StatusBadRequest, "invalid experiment definition")
			return
		}
		if uerr := s.rt.Catalog().Update(&one); uerr != nil {
			writeError(w, http.StatusBadRequest, uerr.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
		return
	}
	for _, e := range exps {
		if err := s.rt.Catalog().Update(e); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleExperimentRemove(w http.ResponseWriter, r *http.Request) {
	s.rt.Catalog().Remove(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}
