package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Reactor metrics
	LoopIterations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "launcher_loop_iterations_total",
			Help: "Total number of reactor loop iterations",
		},
	)

	LoopPollTimeoutMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "launcher_loop_poll_timeout_ms",
			Help:    "Time spent blocked in poll per iteration in milliseconds",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)

	DispatchedCallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launcher_dispatched_callbacks_total",
			Help: "Total number of callbacks dispatched by kind",
		},
		[]string{"kind"},
	)

	HandlesLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "launcher_handles_live",
			Help: "Number of live reactor handles by kind",
		},
		[]string{"kind"},
	)

	SweptPerIteration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "launcher_swept_handles_per_iteration",
			Help:    "Number of handles freed by the post-dispatch sweep, per iteration",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	// Launcher request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launcher_requests_total",
			Help: "Total number of launcher requests by type and status",
		},
		[]string{"type", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "launcher_request_duration_seconds",
			Help:    "Launcher request handling duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	AppsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "launcher_apps_running",
			Help: "Number of currently running applications",
		},
	)

	ManifestCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "launcher_manifest_cache_size",
			Help: "Number of manifests currently cached",
		},
	)

	StopEscalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "launcher_stop_sigkill_escalations_total",
			Help: "Total number of stop requests that escalated to SIGKILL",
		},
	)
)

func init() {
	prometheus.MustRegister(
		LoopIterations,
		LoopPollTimeoutMs,
		DispatchedCallbacks,
		HandlesLive,
		SweptPerIteration,
		RequestsTotal,
		RequestDuration,
		AppsRunning,
		ManifestCacheSize,
		StopEscalations,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
