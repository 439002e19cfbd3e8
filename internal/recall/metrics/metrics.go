package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the recall engine.
type Metrics struct {
	// Reads served by view: facts, history
	ReadsServed *prometheus.CounterVec

	// Query latency by view
	ReadLatency *prometheus.HistogramVec
}

// New creates a Metrics instance with all recall metrics registered.
func New() *Metrics {
	return &Metrics{
		ReadsServed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stet_recall_reads_total",
			Help: "Total recall reads served by view",
		}, []string{"view"}),

		ReadLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stet_recall_read_duration_seconds",
			Help:    "Duration of recall queries by view",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"view"}),
	}
}

// IncrementRead records one served read for a view.
func (m *Metrics) IncrementRead(view string) {
	if m != nil {
		m.ReadsServed.WithLabelValues(view).Inc()
	}
}

// ObserveReadLatency records a query duration for a view.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveReadLatency(view string, start time.Time) {
	if m != nil {
		m.ReadLatency.WithLabelValues(view).Observe(time.Since(start).Seconds())
	}
}
