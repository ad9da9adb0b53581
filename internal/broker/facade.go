package broker

import (
	"context"
	"fmt"

	"provingbroker/internal/jobs"
	"provingbroker/internal/proofclass"
	"provingbroker/internal/telemetry"
)

// Enqueue admits a job (§4.1). Resubmitting a byte-equal job is idempotent;
// resubmitting a different record under the same id is DuplicateIdConflict.
// The store write happens before the job becomes visible in-memory, so a
// Status call issued after Enqueue returns never observes NotFound.
func (b *Broker) Enqueue(ctx context.Context, job jobs.Job) error {
	if dup, conflict := b.checkDuplicate(job); dup {
		return conflict
	}

	if err := b.store.AddJob(ctx, job); err != nil {
		return fmt.Errorf("%w: %v", StoreUnavailable, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, exists := b.jobIndex[job.ID]; exists {
		telemetry.DuplicateTotal.Inc()
		if existing.Equal(job) {
			return nil
		}
		return DuplicateIdConflict
	}
	b.jobIndex[job.ID] = job
	b.queueFor(job.Class).Push(job.ID, job.Epoch)
	telemetry.EnqueueTotal.Inc()
	b.refreshQueueDepthMetrics()
	return nil
}

// checkDuplicate reports whether job.ID is already indexed, and if so
// whether that constitutes an idempotent resubmission (err == nil) or a
// genuine conflict (err == DuplicateIdConflict). It exists so Enqueue can
// skip the store round trip entirely for the common resubmission case.
func (b *Broker) checkDuplicate(job jobs.Job) (dup bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, exists := b.jobIndex[job.ID]
	if !exists {
		return false, nil
	}
	telemetry.DuplicateTotal.Inc()
	if existing.Equal(job) {
		return true, nil
	}
	return true, DuplicateIdConflict
}

// Cancel unconditionally removes a job (§4.1). It mutates in-memory state
// first and issues its own delete against the store, tolerating a
// concurrent in-flight result write rather than serializing behind it — a
// result write that reaches the store first is removed by the delete, and
// one that arrives after it fails in the store because the job row is gone,
// so its report returns StoreUnavailable. Unknown ids are a no-op.
func (b *Broker) Cancel(ctx context.Context, id string) error {
	b.mu.Lock()
	job, exists := b.jobIndex[id]
	if !exists {
		b.mu.Unlock()
		return nil
	}
	delete(b.jobIndex, id)
	delete(b.resultIndex, id)
	delete(b.leaseTable, id)
	delete(b.retryCounter, id)
	b.queueFor(job.Class).Remove(id)
	telemetry.CancelTotal.Inc()
	b.refreshLeaseMetric()
	b.refreshQueueDepthMetrics()
	b.mu.Unlock()

	if err := b.store.DeleteJobAndResult(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", StoreUnavailable, err)
	}
	return nil
}

// Status reports where a job stands (§4.1).
func (b *Broker) Status(id string) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.jobIndex[id]; !exists {
		return Status{State: NotFound}
	}
	if outcome, settled := b.resultIndex[id]; settled {
		if outcome.Failed {
			return Status{State: Rejected, Reason: outcome.Reason}
		}
		return Status{State: Resolved, Value: outcome.Value}
	}
	if _, leased := b.leaseTable[id]; leased {
		return Status{State: InProgress}
	}
	return Status{State: Queued}
}

// Acquire is the dispatch primitive (§4.3). allow is sorted by class rank;
// the first non-empty queue in that order yields a job, which is
// immediately leased. A nil allow list means "no restriction" and expands
// to every known class; a non-nil, empty allow list matches nothing and
// Acquire returns immediately with ok=false.
func (b *Broker) Acquire(allow []proofclass.Class) (job jobs.Job, ok bool) {
	if allow == nil {
		allow = proofclass.All()
	}
	ordered := proofclass.SortByRank(allow)

	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock()
	for _, c := range ordered {
		id, popped := b.queueFor(c).PopNonBlocking()
		if !popped {
			continue
		}
		job = b.jobIndex[id]
		b.leaseTable[id] = jobs.Lease{JobID: id, StartedAt: now, LastHeartbeatAt: now}
		telemetry.DispatchTotal.Inc()
		b.refreshLeaseMetric()
		b.refreshQueueDepthMetrics()
		return job, true
	}
	return jobs.Job{}, false
}

// Heartbeat extends a lease, or — if the caller no longer holds one and
// supplies an allow list — folds into Acquire so an idle worker can pick up
// fresh work in the same call (§4.1).
func (b *Broker) Heartbeat(id string, allow []proofclass.Class) (jobs.Job, bool) {
	b.mu.Lock()
	if lease, held := b.leaseTable[id]; held {
		lease.LastHeartbeatAt = b.clock()
		b.leaseTable[id] = lease
		b.mu.Unlock()
		return jobs.Job{}, false
	}
	b.mu.Unlock()

	if allow != nil {
		return b.Acquire(allow)
	}
	return jobs.Job{}, false
}

// ReportSuccess finalizes a job as successful (§4.1, §4.6). Reports for an
// unknown or already-settled job are dropped with a log line, never an
// error — a worker holding a stale lease is expected behavior, not a bug.
func (b *Broker) ReportSuccess(ctx context.Context, id string, value []byte) error {
	if !b.readyToSettle(id, "success") {
		return nil
	}

	outcome := jobs.Success(value)
	if err := b.store.SetResult(ctx, id, outcome); err != nil {
		return fmt.Errorf("%w: %v", StoreUnavailable, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stillSettleable(id) {
		return nil
	}
	delete(b.leaseTable, id)
	b.resultIndex[id] = outcome
	telemetry.SuccessTotal.Inc()
	b.refreshLeaseMetric()
	return nil
}

// ReportFailure records a failed attempt (§4.1). When a retry is requested
// and the retry budget is not exhausted, the job is re-queued without
// touching the store — the attempt is not terminal. Otherwise the failure
// is persisted as the job's terminal outcome; if the retry budget was the
// reason, the recorded reason is prefixed so the distinction survives
// (an Open Question resolved this way rather than adding a new Outcome
// variant, keeping the tagged union closed per §3).
func (b *Broker) ReportFailure(ctx context.Context, id string, reason string, retryRequested bool) error {
	b.mu.Lock()
	job, exists := b.jobIndex[id]
	if !exists {
		b.mu.Unlock()
		logf("dropping failure report for unknown job %s", id)
		telemetry.StaleReportTotal.Inc()
		return nil
	}
	if _, settled := b.resultIndex[id]; settled {
		b.mu.Unlock()
		logf("dropping failure report for already-settled job %s", id)
		telemetry.StaleReportTotal.Inc()
		return nil
	}
	delete(b.leaseTable, id)
	b.refreshLeaseMetric()

	attemptsSoFar := b.retryCounter[id]
	if retryRequested && attemptsSoFar+1 < b.cfg.MaxRetries {
		b.retryCounter[id] = attemptsSoFar + 1
		b.queueFor(job.Class).Push(id, job.Epoch)
		telemetry.RetryTotal.Inc()
		b.refreshQueueDepthMetrics()
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	finalReason := reason
	if retryRequested {
		finalReason = "retry budget exhausted: " + reason
	}
	outcome := jobs.Failure(finalReason)
	if err := b.store.SetResult(ctx, id, outcome); err != nil {
		return fmt.Errorf("%w: %v", StoreUnavailable, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stillSettleable(id) {
		return nil
	}
	b.resultIndex[id] = outcome
	telemetry.FailureTotal.Inc()
	return nil
}

// readyToSettle reports whether id is a live, unsettled job, logging and
// counting a stale-report drop otherwise. Only ReportSuccess uses it
// directly — ReportFailure needs the job record too, so it inlines the same
// check.
func (b *Broker) readyToSettle(id, kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.jobIndex[id]; !exists {
		logf("dropping %s report for unknown job %s", kind, id)
		telemetry.StaleReportTotal.Inc()
		return false
	}
	if _, settled := b.resultIndex[id]; settled {
		logf("dropping %s report for already-settled job %s", kind, id)
		telemetry.StaleReportTotal.Inc()
		return false
	}
	return true
}

// stillSettleable re-validates, under mu, that id is both still present in
// JobIndex and not yet settled. It must be called again after any store
// round trip a settlement path makes, because a concurrent Cancel — which
// mutates in-memory state without taking a lock across the store call —
// could have removed the job while the store write was in flight. Without
// this recheck a resultIndex entry could be created for a job no longer in
// JobIndex, violating invariant 1 (§3).
func (b *Broker) stillSettleable(id string) bool {
	if _, exists := b.jobIndex[id]; !exists {
		return false
	}
	_, settled := b.resultIndex[id]
	return !settled
}
