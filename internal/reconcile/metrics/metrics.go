package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts reviewer decisions and how submission lines were matched.
type Metrics struct {
	Decisions      *prometheus.CounterVec
	MatcherHits    *prometheus.CounterVec
	UnmatchedLines prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_reconciliation_decisions_total",
			Help: "Reviewer decisions by action (verify, reverify, reject)",
		}, []string{"action"}),
		MatcherHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_reconciliation_matcher_hits_total",
			Help: "Submission lines matched to a registration, by strategy",
		}, []string{"strategy"}),
		UnmatchedLines: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_reconciliation_unmatched_lines_total",
			Help: "Submission lines with no registration found during verification",
		}),
	}
}

func (m *Metrics) IncrementDecision(action string) {
	m.Decisions.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementMatcherHit(strategy string) {
	m.MatcherHits.WithLabelValues(strategy).Inc()
}

func (m *Metrics) IncrementUnmatched() {
	m.UnmatchedLines.Inc()
}
