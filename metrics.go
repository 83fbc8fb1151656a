package profiler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors updated by the profiler pipeline.
// The profiler never registers them; pass Collectors to your registry.
type Metrics struct {
	framesInFlight prometheus.Gauge
	framesDropped  prometheus.Counter
	framesFailed   prometheus.Counter
	scopesPerFrame prometheus.Histogram
	pooledChunks   prometheus.Gauge
}

// NewMetrics creates the profiler's collectors under the given namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		framesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gpuprofiler",
			Name:      "frames_in_flight",
			Help:      "Profiler frames queued for timestamp readback.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpuprofiler",
			Name:      "frames_dropped_total",
			Help:      "Profiler frames dropped because the in-flight window was full.",
		}),
		framesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gpuprofiler",
			Name:      "frames_failed_total",
			Help:      "Profiler frames whose timestamp readback reported an error.",
		}),
		scopesPerFrame: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gpuprofiler",
			Name:      "scopes_per_frame",
			Help:      "Timer scopes recorded per profiling frame.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		pooledChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gpuprofiler",
			Name:      "pooled_query_chunks",
			Help:      "Recycled query chunks waiting for reuse.",
		}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.framesInFlight,
		m.framesDropped,
		m.framesFailed,
		m.scopesPerFrame,
		m.pooledChunks,
	}
}

func (m *Metrics) observeFrame(scopes, pooled int) {
	m.scopesPerFrame.Observe(float64(scopes))
	m.pooledChunks.Set(float64(pooled))
}

func (m *Metrics) setInFlight(n int) {
	m.framesInFlight.Set(float64(n))
}

func (m *Metrics) frameDropped() {
	m.framesDropped.Inc()
}

func (m *Metrics) frameFailed(inFlight int) {
	m.framesFailed.Inc()
	m.framesInFlight.Set(float64(inFlight))
}
