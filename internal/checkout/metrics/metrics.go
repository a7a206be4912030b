package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts checkout outcomes.
type Metrics struct {
	SubmissionsCreated    *prometheus.CounterVec
	DuplicateTransactions prometheus.Counter
	SubmitLatency         prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		SubmissionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_submissions_created_total",
			Help: "Payment submissions created by outcome (free, pending)",
		}, []string{"outcome"}),
		DuplicateTransactions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_duplicate_transactions_total",
			Help: "Checkouts rejected because the transaction reference was already used",
		}),
		SubmitLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "regdesk_checkout_submit_duration_seconds",
			Help:    "Duration of the checkout submission transaction",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncrementSubmissionsCreated(outcome string) {
	m.SubmissionsCreated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementDuplicateTransactions() {
	m.DuplicateTransactions.Inc()
}

func (m *Metrics) ObserveSubmitLatency(seconds float64) {
	m.SubmitLatency.Observe(seconds)
}
