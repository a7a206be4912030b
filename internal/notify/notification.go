// Package notify carries participant-facing notifications out of the request
// path. Delivery is best effort.
package notify

import (
	"context"
	"time"

	id "regdesk/pkg/domain"
)

type Kind string

const (
	KindSubmissionVerified Kind = "submission_verified"
	KindSubmissionRejected Kind = "submission_rejected"
)

type Notification struct {
	Kind          Kind             `json:"kind"`
	Recipient     string           `json:"recipient"`
	ParticipantID id.ParticipantID `json:"participant_id"`
	Subject       string           `json:"subject"`
	Summary       string           `json:"summary"`
	SubmissionID  id.SubmissionID  `json:"submission_id"`
	Amount        int64            `json:"amount"`
	Currency      string           `json:"currency"`
	EventTitles   []string         `json:"event_titles"`
	Reason        string           `json:"reason,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

//go:generate mockgen -source=notification.go -destination=mocks/mocks.go -package=mocks Deliverer,Sink

// Deliverer hands a notification to a transport.
type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// Sink accepts notifications without blocking the caller.
type Sink interface {
	Publish(ctx context.Context, n Notification)
}
