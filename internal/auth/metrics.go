package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	familySigned = "signed"
	familyOpaque = "opaque"
	familyNone   = "none"

	resultAccepted = "accepted"
	resultRejected = "rejected"
	resultError    = "error"
)

// Metrics counts gate decisions and opaque-token cache traffic. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	gateTotal   *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics registers the collectors with registerer, or with the default
// registerer when nil. Duplicate registration is ignored.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		gateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_gate_total",
				Help: "Bearer credentials evaluated by the authentication gate",
			},
			[]string{"family", "result"},
		),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_opaque_token_cache_hits_total",
			Help: "Opaque token lookups served from the cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_opaque_token_cache_misses_total",
			Help: "Opaque token lookups that went to the database",
		}),
	}

	for _, c := range []prometheus.Collector{m.gateTotal, m.cacheHits, m.cacheMisses} {
		_ = registerer.Register(c)
	}

	return m
}

func (m *Metrics) recordGate(family, result string) {
	if m == nil {
		return
	}
	m.gateTotal.WithLabelValues(family, result).Inc()
}

func (m *Metrics) recordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}
