// Package api wires the broker façade to HTTP handlers for producers and
// worker agents, following the teacher's internal/api/server.go: a chi
// router, JSON in/out, and admission rate limiting ahead of the mutating
// endpoint.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"provingbroker/internal/broker"
	"provingbroker/internal/config"
	"provingbroker/internal/jobs"
	"provingbroker/internal/proofclass"
	"provingbroker/internal/ratelimit"
	"provingbroker/internal/telemetry"
)

// Server wires HTTP handlers for the producer/consumer surface (§6).
type Server struct {
	cfg     config.Config
	broker  *broker.Broker
	limiter *ratelimit.TokenBucket
}

// New constructs the API server. limiter may be nil to disable admission
// throttling, matching the teacher's server construction.
func New(cfg config.Config, b *broker.Broker, limiter *ratelimit.TokenBucket) *Server {
	return &Server{cfg: cfg, broker: b, limiter: limiter}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", s.handleEnqueue)
		r.Get("/jobs/{id}", s.handleStatus)
		r.Post("/jobs/{id}/cancel", s.handleCancel)
		r.Post("/acquire", s.handleAcquire)
		r.Post("/jobs/{id}/heartbeat", s.handleHeartbeat)
		r.Post("/jobs/{id}/success", s.handleSuccess)
		r.Post("/jobs/{id}/failure", s.handleFailure)
	})
	return r
}

// requestIDMiddleware stamps every request with a correlation id, echoed
// back so a producer or worker can tie an HTTP response to broker logs.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

type enqueueRequest struct {
	ID      string `json:"id"`
	Class   string `json:"class"`
	Epoch   uint64 `json:"epoch"`
	Payload []byte `json:"payload"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.Class == "" {
		http.Error(w, "id and class are required", http.StatusBadRequest)
		return
	}

	if s.limiter != nil {
		producer := r.Header.Get("X-Producer-ID")
		if producer == "" {
			producer = "default"
		}
		allowed, _, err := s.limiter.Allow(r.Context(), fmt.Sprintf("rl:%s", producer))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job := jobs.Job{
		ID:      req.ID,
		Class:   proofclass.Class(req.Class),
		Epoch:   req.Epoch,
		Payload: req.Payload,
	}
	if err := s.broker.Enqueue(r.Context(), job); err != nil {
		if err == broker.DuplicateIdConflict {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status := s.broker.Status(id)
	if status.State == broker.NotFound {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		State:  status.State.String(),
		Value:  status.Value,
		Reason: status.Reason,
	})
}

type statusResponse struct {
	State  string `json:"state"`
	Value  []byte `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.broker.Cancel(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type acquireRequest struct {
	AllowClasses []string `json:"allow_classes"`
}

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	job, ok := s.broker.Acquire(classesFrom(req.AllowClasses))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

type jobPayload struct {
	ID      string `json:"id"`
	Class   string `json:"class"`
	Epoch   uint64 `json:"epoch"`
	Payload []byte `json:"payload"`
}

func jobResponse(job jobs.Job) jobPayload {
	return jobPayload{ID: job.ID, Class: string(job.Class), Epoch: job.Epoch, Payload: job.Payload}
}

// classesFrom converts the request's allow list into the sentinel the
// broker expects: nil for "no restriction", non-nil (possibly empty) for an
// explicit list, matching Acquire/Heartbeat's contract.
func classesFrom(raw []string) []proofclass.Class {
	if raw == nil {
		return nil
	}
	out := make([]proofclass.Class, len(raw))
	for i, c := range raw {
		out[i] = proofclass.Class(c)
	}
	return out
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req acquireRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	job, ok := s.broker.Heartbeat(id, classesFrom(req.AllowClasses))
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(job))
}

type successRequest struct {
	Value []byte `json:"value"`
}

func (s *Server) handleSuccess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req successRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.broker.ReportSuccess(r.Context(), id, req.Value); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type failureRequest struct {
	Reason string `json:"reason"`
	Retry  bool   `json:"retry"`
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req failureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.broker.ReportFailure(r.Context(), id, req.Reason, req.Retry); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
