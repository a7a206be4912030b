package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published        prometheus.Counter
	Dropped          prometheus.Counter
	DeliveryFailures prometheus.Counter
	FailoverState    prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_notifications_delivered_total",
			Help: "Notifications handed to the transport",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full or closed",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "regdesk_notification_delivery_failures_total",
			Help: "Notifications the transport failed to accept",
		}),
		FailoverState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "regdesk_notification_failover_open",
			Help: "1 while notifications are routed to the fallback deliverer",
		}),
	}
}
