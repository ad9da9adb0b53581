package broker

import (
	"context"
	"testing"
	"time"

	"provingbroker/internal/jobs"
	"provingbroker/internal/proofclass"
	"provingbroker/internal/store"
)

func newTestBroker(t *testing.T) (*Broker, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	b := New(Config{JobTimeout: 30 * time.Second, SweepInterval: time.Hour, MaxRetries: 3}, st)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(b.Stop)
	return b, st
}

func TestEnqueueIsIdempotentForByteEqualJobs(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()
	job := jobs.Job{ID: "j1", Class: proofclass.PublicVM, Epoch: 1, Payload: []byte("a")}

	if err := b.Enqueue(ctx, job); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := b.Enqueue(ctx, job); err != nil {
		t.Fatalf("resubmit of byte-equal job should succeed: %v", err)
	}

	conflicting := job
	conflicting.Payload = []byte("b")
	if err := b.Enqueue(ctx, conflicting); err != DuplicateIdConflict {
		t.Fatalf("expected DuplicateIdConflict, got %v", err)
	}
}

func TestS1PriorityAcrossClasses(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	mustEnqueue(t, b, ctx, jobs.Job{ID: "1", Class: proofclass.PublicVM, Epoch: 5})
	mustEnqueue(t, b, ctx, jobs.Job{ID: "2", Class: proofclass.BlockRootRollup, Epoch: 9})

	job, ok := b.Acquire(nil)
	if !ok || job.ID != "2" {
		t.Fatalf("expected job 2 (higher rank) first, got %+v ok=%v", job, ok)
	}
}

func TestS2EpochWithinClass(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	mustEnqueue(t, b, ctx, jobs.Job{ID: "1", Class: proofclass.MergeRollup, Epoch: 7})
	mustEnqueue(t, b, ctx, jobs.Job{ID: "2", Class: proofclass.MergeRollup, Epoch: 3})

	allow := []proofclass.Class{proofclass.MergeRollup}
	first, ok := b.Acquire(allow)
	if !ok || first.ID != "2" {
		t.Fatalf("expected id=2 (lower epoch) first, got %+v", first)
	}
	second, ok := b.Acquire(allow)
	if !ok || second.ID != "1" {
		t.Fatalf("expected id=1 second, got %+v", second)
	}
}

func TestS3TimeoutReclamation(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	mustEnqueue(t, b, ctx, jobs.Job{ID: "1", Class: proofclass.PublicVM, Epoch: 1})
	job, ok := b.Acquire(nil)
	if !ok || job.ID != "1" {
		t.Fatalf("expected to acquire job 1, got %+v ok=%v", job, ok)
	}

	fakeNow := time.Now().Add(b.cfg.JobTimeout + time.Second)
	b.clock = func() time.Time { return fakeNow }
	b.sweepOnce()

	reacquired, ok := b.Acquire(nil)
	if !ok || reacquired.ID != "1" {
		t.Fatalf("expected reclaimed job 1 to be dispatchable again, got %+v ok=%v", reacquired, ok)
	}

	b.mu.Lock()
	retries := b.retryCounter["1"]
	b.mu.Unlock()
	if retries != 0 {
		t.Fatalf("timeout must not consume retry budget, got retries=%d", retries)
	}
}

func TestS4BoundedRetries(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()

	mustEnqueue(t, b, ctx, jobs.Job{ID: "1", Class: proofclass.PublicVM, Epoch: 1})

	for i := 0; i < 3; i++ {
		job, ok := b.Acquire(nil)
		if !ok || job.ID != "1" {
			t.Fatalf("attempt %d: expected to acquire job 1, got %+v ok=%v", i, job, ok)
		}
		if err := b.ReportFailure(ctx, "1", "transient error", true); err != nil {
			t.Fatalf("attempt %d: report failure: %v", i, err)
		}
	}

	status := b.Status("1")
	if status.State != Rejected {
		t.Fatalf("expected Rejected after exhausting retries, got %v", status.State)
	}
	if _, ok := b.Acquire(nil); ok {
		t.Fatalf("expected no further dispatch of a settled job")
	}
}

func TestS5DuplicateSuccessAfterCancel(t *testing.T) {
	b, st := newTestBroker(t)
	ctx := context.Background()

	mustEnqueue(t, b, ctx, jobs.Job{ID: "1", Class: proofclass.PublicVM, Epoch: 1})
	if _, ok := b.Acquire(nil); !ok {
		t.Fatalf("expected to acquire job 1")
	}
	if err := b.Cancel(ctx, "1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := b.ReportSuccess(ctx, "1", []byte("value")); err != nil {
		t.Fatalf("report success after cancel: %v", err)
	}

	if status := b.Status("1"); status.State != NotFound {
		t.Fatalf("expected NotFound after cancel, got %v", status.State)
	}
	records, err := st.IterateAll(ctx)
	if err != nil {
		t.Fatalf("iterate all: %v", err)
	}
	for _, rec := range records {
		if rec.Job.ID == "1" {
			t.Fatalf("expected cancelled job to be absent from store")
		}
	}
}

func TestS6Recovery(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()

	j1 := jobs.Job{ID: "J1", Class: proofclass.PublicVM, Epoch: 1}
	j2 := jobs.Job{ID: "J2", Class: proofclass.PublicVM, Epoch: 2}
	j3 := jobs.Job{ID: "J3", Class: proofclass.PublicVM, Epoch: 3}
	for _, j := range []jobs.Job{j1, j2, j3} {
		if err := st.AddJob(ctx, j); err != nil {
			t.Fatalf("seed AddJob: %v", err)
		}
	}
	if err := st.SetResult(ctx, "J1", jobs.Success([]byte("ok"))); err != nil {
		t.Fatalf("seed SetResult J1: %v", err)
	}
	if err := st.SetResult(ctx, "J3", jobs.Failure("bad input")); err != nil {
		t.Fatalf("seed SetResult J3: %v", err)
	}

	b := New(Config{JobTimeout: 30 * time.Second, SweepInterval: time.Hour, MaxRetries: 3}, st)
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer b.Stop()

	if s := b.Status("J1"); s.State != Resolved {
		t.Fatalf("expected J1 Resolved, got %v", s.State)
	}
	if s := b.Status("J3"); s.State != Rejected {
		t.Fatalf("expected J3 Rejected, got %v", s.State)
	}

	job, ok := b.Acquire(nil)
	if !ok || job.ID != "J2" {
		t.Fatalf("expected only J2 to be dispatchable, got %+v ok=%v", job, ok)
	}
	if _, ok := b.Acquire(nil); ok {
		t.Fatalf("expected no other job queued after recovery")
	}
}

func TestHeartbeatExtendsLeaseWithoutReturningAJob(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()
	mustEnqueue(t, b, ctx, jobs.Job{ID: "1", Class: proofclass.PublicVM, Epoch: 1})
	if _, ok := b.Acquire(nil); !ok {
		t.Fatalf("expected to acquire job 1")
	}

	job, ok := b.Heartbeat("1", nil)
	if ok {
		t.Fatalf("heartbeat on a held lease must not return a job, got %+v", job)
	}
	if b.Status("1").State != InProgress {
		t.Fatalf("expected job to remain InProgress after heartbeat")
	}
}

func TestHeartbeatWithoutLeaseFallsBackToAcquire(t *testing.T) {
	b, _ := newTestBroker(t)
	ctx := context.Background()
	mustEnqueue(t, b, ctx, jobs.Job{ID: "1", Class: proofclass.PublicVM, Epoch: 1})

	job, ok := b.Heartbeat("nonexistent-lease", []proofclass.Class{proofclass.PublicVM})
	if !ok || job.ID != "1" {
		t.Fatalf("expected heartbeat with no lease + allow list to dispatch job 1, got %+v ok=%v", job, ok)
	}
}

func mustEnqueue(t *testing.T, b *Broker, ctx context.Context, job jobs.Job) {
	t.Helper()
	if err := b.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue %s: %v", job.ID, err)
	}
}
