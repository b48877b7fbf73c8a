package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	lookups *prometheus.CounterVec
	errors  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "critic_cache_lookups_total",
			Help: "Cache lookups by analyzer kind and result (hit, miss, expired)",
		}, []string{"analyzer", "result"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "critic_cache_errors_total",
			Help: "Cache storage errors by operation",
		}, []string{"op", "busy"}),
	}
}

func (m *metrics) hit(kind string)     { m.lookups.WithLabelValues(kind, "hit").Inc() }
func (m *metrics) miss(kind string)    { m.lookups.WithLabelValues(kind, "miss").Inc() }
func (m *metrics) expired(kind string) { m.lookups.WithLabelValues(kind, "expired").Inc() }

func (m *metrics) failure(op string, busy bool) {
	b := "false"
	if busy {
		b = "true"
	}
	m.errors.WithLabelValues(op, b).Inc()
}
