package verification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Verdicts        *prometheus.CounterVec
	StaleDropped    *prometheus.CounterVec
	CounterDropped  prometheus.Counter
	CounterFailures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_verifications_total",
			Help: "Verification verdicts by reason (valid for positive verdicts)",
		}, []string{"reason"}),
		StaleDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_verification_stale_index_entries_total",
			Help: "Index entries dropped from listings because the ledger disagreed",
		}, []string{"query"}),
		CounterDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "docproof_verification_counter_dropped_total",
			Help: "Verification count increments dropped because the queue was full",
		}),
		CounterFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "docproof_verification_counter_failures_total",
			Help: "Verification count increments the counter backend rejected",
		}),
	}
}

func (m *Metrics) observeVerdict(r Result) {
	if m == nil {
		return
	}
	label := string(r.Reason)
	if r.Valid {
		label = "valid"
	}
	m.Verdicts.WithLabelValues(label).Inc()
}

func (m *Metrics) incStale(query string) {
	if m != nil {
		m.StaleDropped.WithLabelValues(query).Inc()
	}
}

func (m *Metrics) incCounterDropped() {
	if m != nil {
		m.CounterDropped.Inc()
	}
}

func (m *Metrics) incCounterFailure() {
	if m != nil {
		m.CounterFailures.Inc()
	}
}
