// Package store defines the durable-store collaborator the broker depends
// on (spec §6) and provides two implementations: PostgresStore for
// production and MemStore for tests and local runs without a database.
package store

import (
	"context"
	"errors"

	"provingbroker/internal/jobs"
)

// ErrNotFound is returned by MemStore.SetResult when the job has not been
// added. internal/broker does not treat it specially: like any other store
// error it is surfaced to the caller wrapped in StoreUnavailable.
var ErrNotFound = errors.New("store: not found")

// Record pairs a persisted job with its terminal outcome, if any. It is the
// unit iterate_all() yields at startup (§4.5).
type Record struct {
	Job    jobs.Job
	Result *jobs.Outcome // nil if the job has not settled
}

// DurableStore is the collaborator interface the broker consumes (§6). All
// operations are assumed to succeed or return an error the broker surfaces
// as StoreUnavailable to its caller (§7).
type DurableStore interface {
	// AddJob idempotently persists a job. Calling it twice with the same,
	// byte-equal job must not error.
	AddJob(ctx context.Context, job jobs.Job) error

	// SetResult persists a terminal outcome for a job that has already been
	// added.
	SetResult(ctx context.Context, jobID string, outcome jobs.Outcome) error

	// DeleteJobAndResult removes both the job and any result. It must be
	// safe to call on an id that is not present.
	DeleteJobAndResult(ctx context.Context, jobID string) error

	// IterateAll yields every persisted job, with its result if it has
	// settled. Used only at startup recovery (§4.5).
	IterateAll(ctx context.Context) ([]Record, error)

	// Close releases any resources held by the store.
	Close()
}
