package oauth

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts authorize and token outcomes by result label. A nil
// *Metrics records nothing.
type Metrics struct {
	authorizeTotal *prometheus.CounterVec
	exchangeTotal  *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		authorizeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorize_total",
				Help: "Authorization code requests by result",
			},
			[]string{"result"},
		),
		exchangeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_exchange_total",
				Help: "Authorization code exchanges by result",
			},
			[]string{"result"},
		),
	}

	_ = registerer.Register(m.authorizeTotal)
	_ = registerer.Register(m.exchangeTotal)

	return m
}

func (m *Metrics) recordAuthorize(err error) {
	if m == nil {
		return
	}
	m.authorizeTotal.WithLabelValues(authorizeResult(err)).Inc()
}

func (m *Metrics) recordExchange(err error) {
	if m == nil {
		return
	}
	m.exchangeTotal.WithLabelValues(exchangeResult(err)).Inc()
}
