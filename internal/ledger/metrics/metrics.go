package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the correction ledger.
type Metrics struct {
	// Creates by outcome: created, replayed, idempotency_conflict,
	// write_conflict, validation_error
	CreateOutcome *prometheus.CounterVec

	// Write retries actually taken after losing the ACTIVE-slot race
	WriteRetries prometheus.Counter

	// Revokes by outcome: revoked, noop, not_found
	RevokeOutcome *prometheus.CounterVec

	// End-to-end create latency including retries
	CreateLatency prometheus.Histogram
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		CreateOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stet_ledger_creates_total",
			Help: "Total correction create calls by outcome",
		}, []string{"outcome"}),

		WriteRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stet_ledger_write_retries_total",
			Help: "Create transaction retries after a concurrent-writer conflict",
		}),

		RevokeOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stet_ledger_revokes_total",
			Help: "Total correction revoke calls by outcome",
		}, []string{"outcome"}),

		CreateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stet_ledger_create_duration_seconds",
			Help:    "Duration of correction creates including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementCreate records a create outcome.
func (m *Metrics) IncrementCreate(outcome string) {
	if m != nil {
		m.CreateOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementWriteRetry records one retry of the create transaction.
func (m *Metrics) IncrementWriteRetry() {
	if m != nil {
		m.WriteRetries.Inc()
	}
}

// IncrementRevoke records a revoke outcome.
func (m *Metrics) IncrementRevoke(outcome string) {
	if m != nil {
		m.RevokeOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveCreateLatency records the total create duration.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCreateLatency(start time.Time) {
	if m != nil {
		m.CreateLatency.Observe(time.Since(start).Seconds())
	}
}
