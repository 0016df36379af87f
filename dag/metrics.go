package dag

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects Prometheus-compatible metrics for
// executor concurrency and per-node latency. All metrics are
// namespaced "deppy_".
type PrometheusMetrics struct {
	inflightNodes   prometheus.Gauge
	scopesBorn      prometheus.Counter
	nodeLatency     *prometheus.HistogramVec
	ignoredResults  *prometheus.CounterVec
	registry        prometheus.Registerer
}

// NewPrometheusMetrics creates and registers the executor's metrics
// with registry. Passing nil registers against
// prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		registry: registry,
		inflightNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "deppy",
			Name:      "inflight_nodes",
			Help:      "Current number of node invocations executing concurrently",
		}),
		scopesBorn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deppy",
			Name:      "scopes_born_total",
			Help:      "Cumulative count of child scopes created by loop fan-out",
		}),
		nodeLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "deppy",
			Name:      "node_latency_ms",
			Help:      "Node invocation duration in milliseconds",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node", "status"}),
		ignoredResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "deppy",
			Name:      "ignored_results_total",
			Help:      "Cumulative count of IgnoreResult values produced, pruning a branch",
		}, []string{"node"}),
	}
}

func (pm *PrometheusMetrics) incInflight()                   { pm.safe(func() { pm.inflightNodes.Inc() }) }
func (pm *PrometheusMetrics) decInflight()                   { pm.safe(func() { pm.inflightNodes.Dec() }) }
func (pm *PrometheusMetrics) recordScopeBirth()               { pm.safe(func() { pm.scopesBorn.Inc() }) }
func (pm *PrometheusMetrics) recordIgnored(nodeName string)    { pm.safe(func() { pm.ignoredResults.WithLabelValues(nodeName).Inc() }) }

func (pm *PrometheusMetrics) recordLatency(nodeName, status string, d time.Duration) {
	pm.safe(func() { pm.nodeLatency.WithLabelValues(nodeName, status).Observe(float64(d.Milliseconds())) })
}

// safe no-ops when pm is nil, so callers can hold a *PrometheusMetrics
// that may or may not have been configured via WithMetrics.
func (pm *PrometheusMetrics) safe(f func()) {
	if pm == nil {
		return
	}
	f()
}
