package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the enforcement trust monitor.
type Metrics struct {
	// Heartbeats by outcome: recorded, validation_error
	HeartbeatOutcome *prometheus.CounterVec

	// Escalation evaluations by resulting level: NONE, WARN, CRITICAL
	Evaluations *prometheus.CounterVec

	// Alerts that won their dedup bucket
	AlertsClaimed prometheus.Counter
}

// New creates a Metrics instance with all enforcement metrics registered.
func New() *Metrics {
	return &Metrics{
		HeartbeatOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stet_enforcement_heartbeats_total",
			Help: "Total heartbeat reports by outcome",
		}, []string{"outcome"}),

		Evaluations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stet_enforcement_escalations_total",
			Help: "Total escalation evaluations by resulting level",
		}, []string{"level"}),

		AlertsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stet_enforcement_alerts_claimed_total",
			Help: "Escalation alerts that won their dedup bucket",
		}),
	}
}

// IncrementHeartbeat records a heartbeat outcome.
func (m *Metrics) IncrementHeartbeat(outcome string) {
	if m != nil {
		m.HeartbeatOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementEvaluation records one escalation evaluation by level.
func (m *Metrics) IncrementEvaluation(level string) {
	if m != nil {
		m.Evaluations.WithLabelValues(level).Inc()
	}
}

// IncrementAlertClaimed records an alert that won its dedup bucket.
func (m *Metrics) IncrementAlertClaimed() {
	if m != nil {
		m.AlertsClaimed.Inc()
	}
}
