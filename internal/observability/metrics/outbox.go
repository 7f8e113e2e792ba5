package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks the notification outbox dispatcher.
type OutboxMetrics struct {
	dispatched       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	backlog          prometheus.Gauge
}

var (
	outboxMetricsOnce sync.Once
	outboxMetrics     *OutboxMetrics
)

// Outbox returns the singleton outbox metrics registry.
func Outbox() *OutboxMetrics {
	outboxMetricsOnce.Do(func() {
		outboxMetrics = newOutboxMetrics(prometheus.DefaultRegisterer)
	})
	return outboxMetrics
}

func newOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "waitlist_outbox_dispatch_total",
		Help: "Outbox jobs dispatched by kind and status.",
	}, []string{"kind", "status"})
	dispatchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "waitlist_outbox_dispatch_duration_seconds",
		Help:    "Outbox batch durations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "waitlist_outbox_backlog",
		Help: "Outbox jobs claimed in the last batch.",
	})

	registerer.MustRegister(dispatched, dispatchDuration, backlog)
	return &OutboxMetrics{
		dispatched:       dispatched,
		dispatchDuration: dispatchDuration,
		backlog:          backlog,
	}
}

func (m *OutboxMetrics) RecordDispatch(kind, status string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(sanitizeLabel(kind), sanitizeLabel(status)).Inc()
}

// RecordBatch observes a dispatcher pass and the number of jobs it claimed.
func (m *OutboxMetrics) RecordBatch(status string, claimed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(sanitizeLabel(status)).Observe(duration.Seconds())
	m.backlog.Set(float64(claimed))
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
