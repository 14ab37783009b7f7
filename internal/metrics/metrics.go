package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "payouts"

// Metrics counts withdrawal lifecycle activity.
type Metrics struct {
	created            prometheus.Counter
	transitions        *prometheus.CounterVec
	enrichmentFailures prometheus.Counter
	gatherer           prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawals_created_total",
			Help:      "Withdrawals created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "withdrawal_transitions_total",
			Help:      "Withdrawal transition attempts by event and outcome.",
		}, []string{"event", "outcome"}),
		enrichmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pixkey_enrichment_failures_total",
			Help:      "Pix key lookups that failed while rendering a withdrawal.",
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.created, m.transitions, m.enrichmentFailures)
	return m
}

func (m *Metrics) WithdrawalCreated() {
	m.created.Inc()
}

func (m *Metrics) Transition(event, outcome string) {
	m.transitions.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) EnrichmentFailed() {
	m.enrichmentFailures.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
