// Package jobs holds the broker's core data model: the immutable Job
// record, its terminal Outcome, and the Lease that tracks an in-flight
// dispatch.
package jobs

import (
	"bytes"
	"time"

	"provingbroker/internal/proofclass"
)

// Job is an immutable unit of proof work. Two jobs with the same ID are
// expected to be byte-equal; enqueue (§4.1) uses Equal to detect a producer
// resubmitting the identical job versus an ID collision with different
// content.
type Job struct {
	ID      string
	Class   proofclass.Class
	Epoch   uint64
	Payload []byte
}

// Equal reports whether two jobs are identical in every field, the ID
// included, so a byte-equal resubmission compares equal and any difference
// in class, epoch or payload does not.
func (j Job) Equal(other Job) bool {
	return j.ID == other.ID &&
		j.Class == other.Class &&
		j.Epoch == other.Epoch &&
		bytes.Equal(j.Payload, other.Payload)
}

// Outcome is the tagged union of terminal results. Exactly one of Value or
// (Reason set with Failed=true) is meaningful for any given Outcome.
type Outcome struct {
	Failed bool
	Value  []byte // set when Failed is false
	Reason string // set when Failed is true
}

// Success builds a successful terminal outcome.
func Success(value []byte) Outcome {
	return Outcome{Failed: false, Value: value}
}

// Failure builds a failed terminal outcome.
func Failure(reason string) Outcome {
	return Outcome{Failed: true, Reason: reason}
}

// Lease records that a job is currently assigned to a worker, bounded by a
// heartbeat deadline enforced by the timeout sweeper.
type Lease struct {
	JobID           string
	StartedAt       time.Time
	LastHeartbeatAt time.Time
}

// Expired reports whether the lease's last heartbeat is old enough that the
// sweeper should reclaim it (§4.4).
func (l Lease) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(l.LastHeartbeatAt) >= timeout
}
