// Package sweeper periodically removes expired carts from stores that do not
// expire keys on their own.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"regdesk/internal/cart/metrics"
)

// Expirer deletes carts whose lifetime ended before now.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Sweeper struct {
	scheduler gocron.Scheduler
	store     Expirer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Start schedules a sweep every interval. Overlapping runs are skipped.
func Start(store Expirer, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create cart sweeper: %w", err)
	}
	s := &Sweeper{scheduler: scheduler, store: store, logger: logger, metrics: m}
	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.Sweep(context.Background(), time.Now())
		}),
		gocron.WithName("cart-expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("schedule cart sweeper: %w", err)
	}
	scheduler.Start()
	return s, nil
}

// Sweep runs one expiry pass.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) int {
	removed, err := s.store.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "cart sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		if s.metrics != nil {
			s.metrics.AddExpired(removed)
		}
		s.logger.InfoContext(ctx, "expired carts removed", "count", removed)
	}
	return removed
}

func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
