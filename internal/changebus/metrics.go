package changebus

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments a Bus's emit/drain lifecycle with Prometheus
// collectors. Grounded on the observability posture of
// erigontech/erigon's prometheus/client_golang usage: counters per
// notification action plus a gauge for the current queue depth. Metrics
// are an ambient/observability concern — nil-safe throughout changebus
// and collection so that wiring them is always optional.
type Metrics struct {
	enqueuedTotal *prometheus.CounterVec
	drainedTotal  *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// NewMetrics creates and registers the changebus collectors under the
// given namespace (e.g. "shardflow") on reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid collisions with the default
// global registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		enqueuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changebus",
			Name:      "notifications_enqueued_total",
			Help:      "Notifications enqueued onto the change bus, by action.",
		}, []string{"action"}),
		drainedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changebus",
			Name:      "notifications_drained_total",
			Help:      "Notifications drained and published, by action.",
		}, []string{"action"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "changebus",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped on the no-subscriber fast path, by action.",
		}, []string{"action"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "changebus",
			Name:      "queue_depth",
			Help:      "Most recently observed change-bus queue depth after an enqueue.",
		}),
	}
	reg.MustRegister(m.enqueuedTotal, m.drainedTotal, m.droppedTotal, m.queueDepth)
	return m
}

func (m *Metrics) enqueued(a Action, depth int) {
	m.enqueuedTotal.WithLabelValues(a.String()).Inc()
	m.queueDepth.Set(float64(depth))
}

func (m *Metrics) drained(a Action) {
	m.drainedTotal.WithLabelValues(a.String()).Inc()
}

func (m *Metrics) dropped(a Action) {
	m.droppedTotal.WithLabelValues(a.String()).Inc()
}
