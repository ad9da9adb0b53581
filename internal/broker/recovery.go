package broker

import (
	"context"
	"fmt"
)

// Start recovers persisted state from the durable store (§4.5) and then
// launches the timeout sweeper. Call it exactly once, before the façade is
// exposed to producers or workers.
func (b *Broker) Start(ctx context.Context) error {
	records, err := b.store.IterateAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", StoreUnavailable, err)
	}

	b.mu.Lock()
	recovered, resolved := 0, 0
	for _, rec := range records {
		b.jobIndex[rec.Job.ID] = rec.Job
		recovered++
		if rec.Result != nil {
			b.resultIndex[rec.Job.ID] = *rec.Result
			resolved++
			continue
		}
		b.queueFor(rec.Job.Class).Push(rec.Job.ID, rec.Job.Epoch)
	}
	b.refreshQueueDepthMetrics()
	b.mu.Unlock()

	logf("recovered %d job(s), %d already settled", recovered, resolved)

	b.startSweeper()
	return nil
}

// Stop halts the timeout sweeper started by Start. Safe to call at most
// once.
func (b *Broker) Stop() {
	if b.stopSweep == nil {
		return
	}
	close(b.stopSweep)
	<-b.sweepDone
}
