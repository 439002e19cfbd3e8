package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Throttled prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Throttled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stet_ratelimit_throttled_total",
			Help: "Total number of requests rejected by the per-tenant rate limiter",
		}),
	}
}

func (m *Metrics) IncrementThrottled() {
	if m == nil {
		return
	}
	m.Throttled.Inc()
}
