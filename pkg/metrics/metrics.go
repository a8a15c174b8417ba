package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick stage histograms, one per pipeline stage of a single tick.
	TickTotal = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soak_tick_total_seconds",
			Help:    "Wall-clock duration of one tick across all symbols",
			Buckets: []float64{.01, .025, .05, .1, .15, .2, .3, .5, 1},
		},
	)

	FetchMD = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soak_fetch_md_seconds",
			Help:    "Time spent waiting for an order book snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	GuardsDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soak_guards_seconds",
			Help:    "Time spent evaluating the guard stack for one iteration",
			Buckets: prometheus.DefBuckets,
		},
	)

	EmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soak_emit_seconds",
			Help:    "Time spent dispatching a coalesced command batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Command Bus counters
	CoalescedCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soak_coalesced_commands_total",
			Help: "Total number of coalesced command batches dispatched, by op",
		},
		[]string{"op"},
	)

	ExchangeRequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "soak_exchange_request_latency_seconds",
			Help:    "Exchange connector request latency by verb and endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb", "endpoint"},
	)

	TickDeadlineMissTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "soak_tick_deadline_miss_total",
			Help: "Total number of ticks aborted for exceeding the per-tick deadline",
		},
	)

	GuardTripsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "soak_guard_trips_total",
			Help: "Total number of times a guard suppressed or clipped a proposal, by reason",
		},
		[]string{"reason"},
	)

	// Delta Pipeline counters
	WritesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "soak_writes_failed_total",
			Help: "Total number of failed atomic artifact writes",
		},
	)

	DeltasAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "soak_deltas_applied_total",
			Help: "Total number of iterations where a tuning delta was applied",
		},
	)

	// Risk Monitor counters
	RiskBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "soak_risk_blocks_total",
			Help: "Total number of pre-trade checks blocked by a risk limit",
		},
	)

	RiskFreezesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "soak_risk_freezes_total",
			Help: "Total number of times the risk monitor entered a freeze state",
		},
	)

	// Iteration-level gauges
	IterationNetBps = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "soak_iteration_net_bps",
			Help: "net_bps recorded for the most recently completed iteration",
		},
	)

	IterationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "soak_iteration_duration_seconds",
			Help:    "Wall-clock duration of one full iteration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)
)

func init() {
	prometheus.MustRegister(
		TickTotal,
		FetchMD,
		GuardsDuration,
		EmitDuration,
		CoalescedCommandsTotal,
		ExchangeRequestLatency,
		TickDeadlineMissTotal,
		GuardTripsTotal,
		WritesFailedTotal,
		DeltasAppliedTotal,
		RiskBlocksTotal,
		RiskFreezesTotal,
		IterationNetBps,
		IterationDuration,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Reset unregisters every soak_* collector from the default registry. It
// exists only for test teardown, to prevent "duplicate collector"
// registration panics across table-driven test cases; production code
// never calls it.
func Reset() {
	collectors := []prometheus.Collector{
		TickTotal, FetchMD, GuardsDuration, EmitDuration,
		CoalescedCommandsTotal, ExchangeRequestLatency, TickDeadlineMissTotal,
		GuardTripsTotal, WritesFailedTotal, DeltasAppliedTotal,
		RiskBlocksTotal, RiskFreezesTotal, IterationNetBps, IterationDuration,
	}
	for _, c := range collectors {
		prometheus.Unregister(c)
	}
	for _, c := range collectors {
		prometheus.MustRegister(c)
	}
}
