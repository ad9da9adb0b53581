package broker

import (
	"time"

	"provingbroker/internal/telemetry"
)

// startSweeper launches the periodic reclamation loop in its own goroutine,
// following the teacher's ticker-driven monitor loop shape (compare
// WorkerRegistry.MonitorWorkers in the axon-scheduler example this design
// borrows the pattern from).
func (b *Broker) startSweeper() {
	b.stopSweep = make(chan struct{})
	b.sweepDone = make(chan struct{})
	go b.runSweeper()
}

func (b *Broker) runSweeper() {
	defer close(b.sweepDone)
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopSweep:
			return
		case <-ticker.C:
			b.sweepOnce()
		}
	}
}

// sweepOnce reclaims leases whose last heartbeat is older than JobTimeout
// (§4.4). It never touches the durable store or the retry counter — a
// timeout is not a reported failure and must not consume retry budget.
func (b *Broker) sweepOnce() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	for id, lease := range b.leaseTable {
		job, exists := b.jobIndex[id]
		if !exists {
			// Cancelled while leased; drop the orphaned lease.
			delete(b.leaseTable, id)
			continue
		}
		if lease.Expired(now, b.cfg.JobTimeout) {
			delete(b.leaseTable, id)
			b.queueFor(job.Class).Push(id, job.Epoch)
			telemetry.TimeoutReclaimTotal.Inc()
		}
	}
	b.refreshLeaseMetric()
	b.refreshQueueDepthMetrics()
}
