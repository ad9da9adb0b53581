// Package broker implements the proving job broker's façade: the priority
// queues, lease table, retry counter, and the enqueue/cancel/status/acquire/
// heartbeat/report_success/report_failure operations that mutate them under
// a single mutex, plus the timeout sweeper and startup recovery that keep
// that in-memory state consistent with a durable store.
package broker

import (
	"log"
	"sync"
	"time"

	"provingbroker/internal/jobs"
	"provingbroker/internal/proofclass"
	"provingbroker/internal/queue"
	"provingbroker/internal/store"
	"provingbroker/internal/telemetry"
)

// Config carries the three tunables the façade's operations depend on
// (§6 Configuration). It applies no defaults of its own: zero values are
// used as given, and config.Load supplies the 30s / 10s / 3 defaults.
type Config struct {
	JobTimeout    time.Duration
	SweepInterval time.Duration
	MaxRetries    int
}

// Broker owns every piece of state described in §2-3: the job and result
// indices, the lease table, the retry counter, and one priority queue per
// proof class. All mutation happens under mu, which is the broker's single
// mutual-exclusion domain (§5) — no method here blocks on I/O while holding
// it; durable-store calls that must happen before a mutation is visible are
// made before mu is acquired.
type Broker struct {
	mu sync.Mutex

	cfg   Config
	store store.DurableStore
	clock func() time.Time

	jobIndex     map[string]jobs.Job
	resultIndex  map[string]jobs.Outcome
	leaseTable   map[string]jobs.Lease
	retryCounter map[string]int
	queues       map[proofclass.Class]*queue.PriorityQueue

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New builds a Broker with empty state. Call Start to recover any persisted
// jobs from st and begin the timeout sweeper.
func New(cfg Config, st store.DurableStore) *Broker {
	b := &Broker{
		cfg:          cfg,
		store:        st,
		clock:        time.Now,
		jobIndex:     make(map[string]jobs.Job),
		resultIndex:  make(map[string]jobs.Outcome),
		leaseTable:   make(map[string]jobs.Lease),
		retryCounter: make(map[string]int),
		queues:       make(map[proofclass.Class]*queue.PriorityQueue),
	}
	for _, c := range proofclass.All() {
		b.queues[c] = queue.New()
	}
	return b
}

// queueFor returns the priority queue for c, lazily creating one for a
// class absent from proofclass.All() (§9: unranked classes are still
// scheduled, just last).
func (b *Broker) queueFor(c proofclass.Class) *queue.PriorityQueue {
	q, ok := b.queues[c]
	if !ok {
		q = queue.New()
		b.queues[c] = q
	}
	return q
}

func (b *Broker) refreshQueueDepthMetrics() {
	for c, q := range b.queues {
		telemetry.QueueDepth.WithLabelValues(string(c)).Set(float64(q.Len()))
	}
}

func (b *Broker) refreshLeaseMetric() {
	telemetry.LeaseCount.Set(float64(len(b.leaseTable)))
}

func logf(format string, args ...interface{}) {
	log.Printf("broker: "+format, args...)
}
