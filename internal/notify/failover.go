package notify

import (
	"context"
	"log/slog"

	"regdesk/pkg/platform/circuit"
)

// Failover delivers through primary and switches to fallback once the
// breaker opens. The primary is still tried on every delivery so the breaker
// can close again.
type Failover struct {
	primary  Deliverer
	fallback Deliverer
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics
}

func NewFailover(primary, fallback Deliverer, breaker *circuit.Breaker, logger *slog.Logger, m *Metrics) *Failover {
	return &Failover{primary: primary, fallback: fallback, breaker: breaker, logger: logger, metrics: m}
}

func (f *Failover) Deliver(ctx context.Context, n Notification) error {
	err := f.primary.Deliver(ctx, n)
	if err == nil {
		if _, change := f.breaker.RecordSuccess(); change.Closed {
			f.logger.InfoContext(ctx, "notification transport recovered", "breaker", f.breaker.Name())
			f.setGauge(0)
		}
		return nil
	}
	useFallback, change := f.breaker.RecordFailure()
	if change.Opened {
		f.logger.WarnContext(ctx, "notification transport failing, using fallback",
			"breaker", f.breaker.Name(),
			"error", err,
		)
		f.setGauge(1)
	}
	if useFallback {
		return f.fallback.Deliver(ctx, n)
	}
	return err
}

func (f *Failover) setGauge(v float64) {
	if f.metrics != nil {
		f.metrics.FailoverState.Set(v)
	}
}
