package quiz

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts degraded-mode events per operation.
type Metrics struct {
	Fallbacks *prometheus.CounterVec
	Retries   *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizclient",
			Name:      "fallback_total",
			Help:      "Reads and submissions served from local fallback data.",
		}, []string{"operation"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizclient",
			Name:      "retries_total",
			Help:      "Requests retried after a timeout.",
		}, []string{"operation"}),
	}
	if reg != nil {
		reg.MustRegister(m.Fallbacks, m.Retries)
	}
	return m
}
