// Package metrics records rate limit decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions   *prometheus.CounterVec
	StoreErrors *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_ratelimit_decisions_total",
			Help: "Rate limit decisions by class and outcome (allowed or denied)",
		}, []string{"class", "outcome"}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_ratelimit_store_errors_total",
			Help: "Rate limit checks that failed open because the store errored",
		}, []string{"class"}),
	}
}

func (m *Metrics) ObserveDecision(class string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.Decisions.WithLabelValues(class, outcome).Inc()
}

func (m *Metrics) IncStoreError(class string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(class).Inc()
	}
}
