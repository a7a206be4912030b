package notify

import (
	"context"
	"log/slog"
	"sync"
)

const defaultQueueSize = 256

// AsyncPublisher queues notifications for a single background worker.
// Publish never blocks; a full queue drops the notification.
type AsyncPublisher struct {
	deliverer Deliverer
	logger    *slog.Logger
	metrics   *Metrics

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	done   chan struct{}
}

type AsyncOption func(*AsyncPublisher)

func WithQueueSize(n int) AsyncOption {
	return func(p *AsyncPublisher) {
		if n > 0 {
			p.queue = make(chan Notification, n)
		}
	}
}

func WithLogger(logger *slog.Logger) AsyncOption {
	return func(p *AsyncPublisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) AsyncOption {
	return func(p *AsyncPublisher) {
		p.metrics = m
	}
}

// NewAsyncPublisher starts the delivery worker. Call Close to drain it.
func NewAsyncPublisher(deliverer Deliverer, opts ...AsyncOption) *AsyncPublisher {
	p := &AsyncPublisher{
		deliverer: deliverer,
		queue:     make(chan Notification, defaultQueueSize),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) Publish(ctx context.Context, n Notification) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop(ctx, n, "publisher closed")
		return
	}
	select {
	case p.queue <- n:
	default:
		p.drop(ctx, n, "queue full")
	}
}

func (p *AsyncPublisher) drop(ctx context.Context, n Notification, reason string) {
	if p.metrics != nil {
		p.metrics.Dropped.Inc()
	}
	p.logger.WarnContext(ctx, "notification dropped",
		"reason", reason,
		"kind", string(n.Kind),
		"submission_id", n.SubmissionID.String(),
	)
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for n := range p.queue {
		// Delivery outlives the request that queued it.
		if err := p.deliverer.Deliver(context.Background(), n); err != nil {
			if p.metrics != nil {
				p.metrics.DeliveryFailures.Inc()
			}
			p.logger.Warn("notification delivery failed",
				"kind", string(n.Kind),
				"submission_id", n.SubmissionID.String(),
				"error", err,
			)
			continue
		}
		if p.metrics != nil {
			p.metrics.Published.Inc()
		}
	}
}

// Close stops accepting notifications and waits for the queue to drain or
// ctx to end.
func (p *AsyncPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
