package reconcile

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	rollbacks  *prometheus.CounterVec
	refreshes  *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	pending    prometheus.Gauge
	viewSize   prometheus.Gauge
	dropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quicknotes_engine_operations_total",
			Help: "Remote operations resolved by the engine, by kind and result",
		}, []string{"kind", "result"}),
		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quicknotes_engine_rollbacks_total",
			Help: "Optimistic mutations reverted after a remote failure",
		}, []string{"kind"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quicknotes_engine_refreshes_total",
			Help: "Full refreshes offered to the engine, by result",
		}, []string{"result"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quicknotes_engine_remote_duration_seconds",
			Help:    "Remote call duration as seen by the engine",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quicknotes_engine_pending_operations",
			Help: "Remote calls currently in flight or queued",
		}),
		viewSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quicknotes_engine_view_size",
			Help: "Notes currently in the view",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "quicknotes_engine_notifications_dropped_total",
			Help: "Notifications discarded because nobody drained the channel",
		}),
	}
}

func (m *Metrics) resolved(kind OpKind, result string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(kind), result).Inc()
	if !started.IsZero() {
		m.latency.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) rolledBack(kind OpKind) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) refreshed(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) observe(pending, viewSize int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.viewSize.Set(float64(viewSize))
}

func (m *Metrics) droppedNotification() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
