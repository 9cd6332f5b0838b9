package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"livescout/internal/jobs"
	"livescout/internal/store"
	logx "livescout/pkg/logx"
)

// Deps are the pipeline entry points the API fronts. The run funcs execute
// inside a tracked job; their return value lands in the job's exit info.
type Deps struct {
	Jobs  *jobs.Tracker
	Store store.Store

	Discover      func(ctx context.Context, req DiscoverRequest) (any, error)
	Verify        func(ctx context.Context) (any, error)
	OutreachOne   func(ctx context.Context, id, lang string) error
	OutreachBatch func(ctx context.Context, lang string) (any, error)
}

type DiscoverRequest struct {
	TargetCount       int   `json:"target_count,omitempty"`
	Concurrency       int   `json:"concurrency,omitempty"`
	FollowerThreshold int64 `json:"follower_threshold,omitempty"`
}

type OutreachRequest struct {
	ID   string `json:"id,omitempty"`
	Lang string `json:"lang,omitempty"`
}

type ClearRequest struct {
	Kind string `json:"kind"`
}

// envelope is the uniform response shape. Status is "ok" or "error".
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	JobID      string            `json:"job_id,omitempty"`
	Job        *store.JobRecord  `json:"job,omitempty"`
	Jobs       []store.JobRecord `json:"jobs,omitempty"`
	Candidates []store.Candidate `json:"candidates,omitempty"`
	Count      int               `json:"count,omitempty"`
}

// Handler builds the API mux. Exposed separately so tests can drive it
// through httptest without a live listener.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/discover", s.handleDiscover)
	mux.HandleFunc("POST /api/verify", s.handleVerify)
	mux.HandleFunc("POST /api/outreach", s.handleOutreach)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJobGet)
	mux.HandleFunc("GET /api/jobs", s.handleJobList)
	mux.HandleFunc("GET /api/candidates", s.handleCandidates)
	mux.HandleFunc("POST /api/requeue", s.handleRequeue)
	mux.HandleFunc("POST /api/clear", s.handleClear)
	return mux
}

func (s *Service) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.deps.Jobs.Submit(r.Context(), "discover", func(ctx context.Context) (any, error) {
		return s.deps.Discover(ctx, req)
	})
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.write(w, http.StatusAccepted, envelope{Status: "ok", Message: "discovery started", JobID: rec.ID})
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Jobs.Submit(r.Context(), "verify", func(ctx context.Context) (any, error) {
		return s.deps.Verify(ctx)
	})
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.write(w, http.StatusAccepted, envelope{Status: "ok", Message: "qualification started", JobID: rec.ID})
}

func (s *Service) handleOutreach(w http.ResponseWriter, r *http.Request) {
	var req OutreachRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		rec store.JobRecord
		err error
	)
	if req.ID != "" {
		rec, err = s.deps.Jobs.Submit(r.Context(), "outreach", func(ctx context.Context) (any, error) {
			if err := s.deps.OutreachOne(ctx, req.ID, req.Lang); err != nil {
				return nil, err
			}
			return map[string]string{"id": req.ID, "result": "sent"}, nil
		})
	} else {
		rec, err = s.deps.Jobs.Submit(r.Context(), "outreach", func(ctx context.Context) (any, error) {
			return s.deps.OutreachBatch(ctx, req.Lang)
		})
	}
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.write(w, http.StatusAccepted, envelope{Status: "ok", Message: "outreach started", JobID: rec.ID})
}

func (s *Service) handleJobGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			s.fail(w, http.StatusNotFound, "no such job")
			return
		}
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.write(w, http.StatusOK, envelope{Status: "ok", Job: &rec})
}

func (s *Service) handleJobList(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Jobs.List(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.write(w, http.StatusOK, envelope{Status: "ok", Jobs: list, Count: len(list)})
}

func (s *Service) handleCandidates(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Store.Candidates(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	kind := strings.TrimSpace(r.URL.Query().Get("kind"))
	if kind != "" {
		status := store.Status(kind)
		if !status.Valid() {
			s.fail(w, http.StatusBadRequest, "unknown kind "+kind)
			return
		}
		filtered := all[:0]
		for _, c := range all {
			if c.Status == status {
				filtered = append(filtered, c)
			}
		}
		all = filtered
	}
	s.write(w, http.StatusOK, envelope{Status: "ok", Candidates: all, Count: len(all)})
}

// handleRequeue flips failed deliveries back to available so a later
// outreach batch retries them. This is the only path that moves a candidate
// status backwards.
func (s *Service) handleRequeue(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Store.RequeueFailed(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.write(w, http.StatusOK, envelope{Status: "ok", Message: "requeued failed candidates", Count: n})
}

func (s *Service) handleClear(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind := store.ClearKind(strings.TrimSpace(req.Kind))
	switch kind {
	case store.ClearVerified, store.ClearLedger, store.ClearJobs, store.ClearCandidates:
	default:
		s.fail(w, http.StatusBadRequest, "unknown kind "+req.Kind)
		return
	}
	if err := s.deps.Store.Clear(r.Context(), kind); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.write(w, http.StatusOK, envelope{Status: "ok", Message: "cleared " + string(kind)})
}

// decode reads an optional JSON body; an empty body leaves v untouched.
// Unknown fields are rejected so typos surface instead of silently noop'ing.
func (s *Service) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return true
		}
		s.fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Service) write(w http.ResponseWriter, code int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("response encode failed", logx.Err(err))
	}
}

func (s *Service) fail(w http.ResponseWriter, code int, msg string) {
	s.write(w, code, envelope{Status: "error", Message: msg})
}
