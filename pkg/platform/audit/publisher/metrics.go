package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit publisher.
type Metrics struct {
	Emitted         prometheus.Counter
	Dropped         prometheus.Counter
	PersistFailures prometheus.Counter
	BufferDepth     prometheus.Gauge
}

// NewMetrics registers publisher metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Emitted: f.NewCounter(prometheus.CounterOpts{
			Name: "docproof_audit_entries_emitted_total",
			Help: "Total number of audit entries accepted by the publisher",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "docproof_audit_entries_dropped_total",
			Help: "Total number of audit entries dropped because the buffer was full",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "docproof_audit_persist_failures_total",
			Help: "Total number of audit entries the store failed to persist",
		}),
		BufferDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "docproof_audit_buffer_depth",
			Help: "Audit entries waiting in the publisher buffer",
		}),
	}
}

func (m *Metrics) incEmitted() {
	if m != nil {
		m.Emitted.Inc()
	}
}

func (m *Metrics) incDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) setDepth(n int) {
	if m != nil {
		m.BufferDepth.Set(float64(n))
	}
}
