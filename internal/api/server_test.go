package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"provingbroker/internal/broker"
	"provingbroker/internal/config"
	"provingbroker/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st := store.NewMemStore()
	b := broker.New(broker.Config{JobTimeout: 30_000_000_000, SweepInterval: 3600_000_000_000, MaxRetries: 3}, st)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start broker: %v", err)
	}
	t.Cleanup(b.Stop)
	return New(config.Config{}, b, nil)
}

func TestEnqueueThenStatusThenAcquire(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	enqueueBody, _ := json.Marshal(map[string]any{
		"id": "j1", "class": "PUBLIC_VM", "epoch": 1, "payload": []byte("hello"),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(enqueueBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("enqueue: expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/jobs/j1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.State != "Queued" {
		t.Fatalf("expected Queued, got %s", status.State)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/acquire", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("acquire: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var job jobPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode acquired job: %v", err)
	}
	if job.ID != "j1" {
		t.Fatalf("expected job j1, got %+v", job)
	}
}

func TestAcquireReturnsNoContentWhenEmpty(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/acquire", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestCancelUnknownJobIsNoop(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/nonexistent/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	router := s.Router()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
