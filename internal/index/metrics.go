package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Events     *prometheus.CounterVec
	Reconciled prometheus.Counter
	Rebuilds   prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_index_events_total",
			Help: "Events offered to the index by result (applied or discarded)",
		}, []string{"result"}),
		Reconciled: f.NewCounter(prometheus.CounterOpts{
			Name: "docproof_index_reconciled_total",
			Help: "Stale index entries refreshed from the ledger",
		}),
		Rebuilds: f.NewCounter(prometheus.CounterOpts{
			Name: "docproof_index_rebuilds_total",
			Help: "Full index rebuilds from the event log",
		}),
	}
}

func (m *Metrics) observeApply(applied bool) {
	if m == nil {
		return
	}
	if applied {
		m.Events.WithLabelValues("applied").Inc()
		return
	}
	m.Events.WithLabelValues("discarded").Inc()
}

func (m *Metrics) incReconciled() {
	if m != nil {
		m.Reconciled.Inc()
	}
}

func (m *Metrics) incRebuilds() {
	if m != nil {
		m.Rebuilds.Inc()
	}
}
