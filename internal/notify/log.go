package notify

import (
	"context"
	"log/slog"
)

// LogDeliverer writes notifications to the log. Used in development and as
// the fallback when the broker is unreachable.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger}
}

func (d *LogDeliverer) Deliver(ctx context.Context, n Notification) error {
	d.logger.InfoContext(ctx, "notification",
		"kind", string(n.Kind),
		"recipient", n.Recipient,
		"subject", n.Subject,
		"submission_id", n.SubmissionID.String(),
		"amount", n.Amount,
		"currency", n.Currency,
		"events", n.EventTitles,
		"reason", n.Reason,
	)
	return nil
}
