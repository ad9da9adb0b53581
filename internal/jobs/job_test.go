package jobs

import (
	"testing"
	"time"

	"provingbroker/internal/proofclass"
)

func TestJobEqual(t *testing.T) {
	a := Job{ID: "1", Class: proofclass.PublicVM, Epoch: 5, Payload: []byte("x")}
	b := Job{ID: "1", Class: proofclass.PublicVM, Epoch: 5, Payload: []byte("x")}
	c := Job{ID: "1", Class: proofclass.PublicVM, Epoch: 6, Payload: []byte("x")}

	if !a.Equal(b) {
		t.Fatalf("expected identical jobs to be equal")
	}
	if a.Equal(c) {
		t.Fatalf("expected jobs with different epochs to differ")
	}
}

func TestLeaseExpired(t *testing.T) {
	now := time.Now()
	l := Lease{JobID: "1", StartedAt: now.Add(-time.Minute), LastHeartbeatAt: now.Add(-31 * time.Second)}
	if !l.Expired(now, 30*time.Second) {
		t.Fatalf("expected lease to be expired")
	}
	fresh := Lease{JobID: "1", StartedAt: now, LastHeartbeatAt: now}
	if fresh.Expired(now, 30*time.Second) {
		t.Fatalf("expected fresh lease to not be expired")
	}
}
