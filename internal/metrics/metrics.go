// Package metrics defines the Prometheus metrics chopd exposes, split into
// two families: low-cardinality counters describing the proxy's own
// behavior (queue, control routes, forwarding), and a small set of
// fixture-server metrics for the test target. Keeping that split avoids
// cardinality blowups from per-request-id labels.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// controlRequestsTotal counts hits on the /_chopin/* router by route
	// and response status.
	controlRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chopin_control_requests_total",
			Help: "Total requests served by the /_chopin control router, by route and status",
		},
		[]string{"route", "status"},
	)

	// queueDepth reports the number of mutating requests currently
	// waiting for the serialization slot (the one in flight is not
	// counted as waiting).
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chopin_queue_depth",
			Help: "Current number of mutating requests waiting for the serialization slot",
		},
	)

	// queueWait measures how long a mutating request waited for the
	// slot before being dispatched to the target.
	queueWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chopin_queue_wait_seconds",
			Help:    "Time spent waiting for the serialization slot before dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// forwardRequestsTotal counts queued requests forwarded to the target
	// by method and outcome status; pass-through traffic is not counted.
	forwardRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chopin_forward_requests_total",
			Help: "Total requests forwarded to the target, by method and response status",
		},
		[]string{"method", "status"},
	)

	// forwardDuration measures end-to-end forwarding latency (queued
	// requests only; pass-through is not serialized and not logged).
	forwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chopin_forward_duration_seconds",
			Help:    "Duration of a queued request's round trip to the target",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// contextReportsTotal counts accepted report-context calls.
	contextReportsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chopin_context_reports_total",
			Help: "Total accepted /_chopin/report-context calls",
		},
	)
)

// Fixture-side metrics (the in-memory target used by chopd's own tests).
var (
	fixtureInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chopin_fixture_inflight",
			Help: "Number of requests currently executing in the fixture target",
		},
	)
	fixtureRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chopin_fixture_requests_total",
			Help: "Total requests handled by the fixture target, by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		controlRequestsTotal,
		queueDepth,
		queueWait,
		forwardRequestsTotal,
		forwardDuration,
		contextReportsTotal,
		fixtureInflight,
		fixtureRequestsTotal,
	)
}

// ObserveControlRequest records a /_chopin/* response.
func ObserveControlRequest(route string, status int) {
	controlRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// QueueDepthSet sets the current number of waiters in the serialization
// queue.
func QueueDepthSet(depth int64) { queueDepth.Set(float64(depth)) }

// QueueWaitObserve records how long a request waited for the slot.
func QueueWaitObserve(d time.Duration) { queueWait.Observe(d.Seconds()) }

// ObserveForward records a forwarded request's outcome and latency.
func ObserveForward(method string, status int, dur time.Duration) {
	forwardRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	forwardDuration.WithLabelValues(method).Observe(dur.Seconds())
}

// ContextReportInc counts one accepted report-context call.
func ContextReportInc() { contextReportsTotal.Inc() }

// FixtureInflightInc/Dec track concurrency inside the fixture target. The
// fixture's /slow?max query reports its own counter, not this gauge; the
// gauge is kept for interactive debugging against the fixture's /metrics
// endpoint.
func FixtureInflightInc() { fixtureInflight.Inc() }
func FixtureInflightDec() { fixtureInflight.Dec() }

// ObserveFixtureRequest records a fixture-handled request.
func ObserveFixtureRequest(method string, status int) {
	fixtureRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
