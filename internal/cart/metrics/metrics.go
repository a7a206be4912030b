package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ItemsAdded   prometheus.Counter
	ItemsRemoved prometheus.Counter
	CartsExpired prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ItemsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_cart_items_added_total",
			Help: "Total number of events added to carts",
		}),
		ItemsRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_cart_items_removed_total",
			Help: "Total number of events removed from carts",
		}),
		CartsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_carts_expired_total",
			Help: "Carts removed by the expiry sweep",
		}),
	}
}

func (m *Metrics) IncrementItemsAdded() {
	m.ItemsAdded.Inc()
}

func (m *Metrics) IncrementItemsRemoved() {
	m.ItemsRemoved.Inc()
}

func (m *Metrics) AddExpired(n int) {
	m.CartsExpired.Add(float64(n))
}
