package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts team lifecycle and membership transitions.
type Metrics struct {
	TeamsCreated prometheus.Counter
	Transitions  *prometheus.CounterVec
}

func New() *Metrics {
	return &Metrics{
		TeamsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_teams_created_total",
			Help: "Total number of teams created",
		}),
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "regdesk_team_membership_transitions_total",
			Help: "Membership transitions by kind (invited, joined, declined, left, disbanded, locked, unlocked, requested)",
		}, []string{"transition"}),
	}
}

func (m *Metrics) IncrementTeamsCreated() {
	m.TeamsCreated.Inc()
}

func (m *Metrics) IncrementTransition(transition string) {
	m.Transitions.WithLabelValues(transition).Inc()
}
