// Package metrics exposes the Prometheus gauges and counters the agentic
// run subsystem feeds: queue depth, active leases, connected SSE readers,
// and worker pool health, grounded on the gauge-per-concern style other
// components in this stack use.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts terminal runs by final status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentic_runs_total",
			Help: "Total number of runs resolved, by terminal status",
		},
		[]string{"status"},
	)

	// QueueDepth is the number of jobs waiting in a pod's worker pool queue.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentic_queue_depth",
			Help: "Number of start-turn jobs queued per pod",
		},
		[]string{"pod_id"},
	)

	// ActiveTurns is the number of turns a pod's workers are currently
	// driving.
	ActiveTurns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentic_active_turns",
			Help: "Number of turns actively being driven per pod",
		},
		[]string{"pod_id"},
	)

	// WorkersTotal is the configured worker count per pod.
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agentic_workers_total",
			Help: "Total worker goroutines configured per pod",
		},
		[]string{"pod_id"},
	)

	// LeaseAcquireFailuresTotal counts lost AcquireLease races, i.e. a
	// duplicate start-turn job arriving while a turn is already owned.
	LeaseAcquireFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentic_lease_acquire_failures_total",
			Help: "Total number of AcquireLease calls that found the turn already owned",
		},
	)

	// LeaseLostTotal counts turns that ended via the lease-lost path.
	LeaseLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentic_lease_lost_total",
			Help: "Total number of turns that lost their lease mid-stream",
		},
	)

	// SSEConnectedReaders is the number of clients currently attached to
	// GET /runs/{run_id}/events.
	SSEConnectedReaders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentic_sse_connected_readers",
			Help: "Number of clients currently streaming run events over SSE",
		},
	)

	// SSEGapHealsTotal counts times the Stream Reader had to fall back to
	// list_events to heal a gap in the live tail.
	SSEGapHealsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agentic_sse_gap_heals_total",
			Help: "Total number of times the stream reader healed a sequence gap via replay",
		},
	)

	// UpstreamRequestDuration times each Upstream Adapter call, bucketed by
	// outcome.
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentic_upstream_request_duration_seconds",
			Help:    "Duration of upstream agent service streams, by outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// EventAppendDuration times Run Store AppendEvent calls, including
	// optimistic retries.
	EventAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentic_event_append_duration_seconds",
			Help:    "Duration of Run Store AppendEvent calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RunsTotal,
		QueueDepth,
		ActiveTurns,
		WorkersTotal,
		LeaseAcquireFailuresTotal,
		LeaseLostTotal,
		SSEConnectedReaders,
		SSEGapHealsTotal,
		UpstreamRequestDuration,
		EventAppendDuration,
	)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and recording it to a
// histogram on completion.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
