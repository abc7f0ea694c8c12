package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registry ledger.
// Tracks operation outcomes, latency, CAS conflicts and storage retries.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CASConflicts      *prometheus.CounterVec
	StorageRetries    *prometheus.CounterVec
}

// New registers the ledger metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_ledger_operations_total",
			Help: "Ledger operations by operation and outcome code",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docproof_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations including CAS retries",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		CASConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_ledger_cas_conflicts_total",
			Help: "Compare-and-swap attempts that lost to a concurrent writer",
		}, []string{"operation"}),
		StorageRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docproof_ledger_storage_retries_total",
			Help: "Storage calls retried after an unavailable error",
		}, []string{"operation"}),
	}
}

// ObserveOperation records the outcome and latency of one operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementCASConflict(operation string) {
	if m == nil {
		return
	}
	m.CASConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementStorageRetry(operation string) {
	if m == nil {
		return
	}
	m.StorageRetries.WithLabelValues(operation).Inc()
}
