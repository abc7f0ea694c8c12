package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks per-consumer delivery progress.
type Metrics struct {
	Delivered *prometheus.CounterVec
	Failures  *prometheus.CounterVec
	Cursor    *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_notifier_events_delivered_total",
			Help: "Events successfully handled by each consumer",
		}, []string{"consumer"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_notifier_delivery_failures_total",
			Help: "Failed delivery attempts per consumer (each is retried)",
		}, []string{"consumer"}),
		Cursor: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docproof_notifier_cursor_sequence",
			Help: "Last event sequence acknowledged by each consumer",
		}, []string{"consumer"}),
	}
}

func (m *Metrics) delivered(consumer string, seq int64) {
	if m == nil {
		return
	}
	m.Delivered.WithLabelValues(consumer).Inc()
	m.Cursor.WithLabelValues(consumer).Set(float64(seq))
}

func (m *Metrics) failed(consumer string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(consumer).Inc()
}
