// Package telemetry exposes the broker's Prometheus metrics, following the
// teacher's registration pattern: package-level collectors, registered once
// behind a sync.Once, served from a promhttp.Handler.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	EnqueueTotal        = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_enqueue_total", Help: "Jobs accepted by enqueue"})
	DuplicateTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_duplicate_total", Help: "Enqueue calls that hit an existing job id"})
	RateLimitRejects    = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_rate_limit_rejects_total", Help: "Enqueue requests rejected by the admission limiter"})
	DispatchTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_dispatch_total", Help: "Jobs handed out by acquire"})
	SuccessTotal        = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_success_total", Help: "Jobs settled as success"})
	FailureTotal        = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_failure_total", Help: "Jobs settled as terminal failure"})
	RetryTotal          = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_retry_total", Help: "Failure reports that were re-queued as a retry"})
	TimeoutReclaimTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_timeout_reclaim_total", Help: "Leases reclaimed by the sweeper due to a stale heartbeat"})
	CancelTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_cancel_total", Help: "Jobs removed via cancel"})
	StaleReportTotal    = prometheus.NewCounter(prometheus.CounterOpts{Name: "broker_stale_report_total", Help: "Worker reports dropped: unknown or already-settled job id"})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "broker_queue_depth", Help: "Ready queue depth by proof class"}, []string{"class"})
	LeaseCount = prometheus.NewGauge(prometheus.GaugeOpts{Name: "broker_leases_in_flight", Help: "Jobs currently leased to a worker"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			EnqueueTotal,
			DuplicateTotal,
			RateLimitRejects,
			DispatchTotal,
			SuccessTotal,
			FailureTotal,
			RetryTotal,
			TimeoutReclaimTotal,
			CancelTotal,
			StaleReportTotal,
			QueueDepth,
			LeaseCount,
		)
	})
	return promhttp.Handler()
}
