package models

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	id "regdesk/pkg/domain"
)

// SubmissionStatus is the closed set of payment submission states.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionVerified SubmissionStatus = "verified"
	SubmissionRejected SubmissionStatus = "rejected"
)

// Reviewers may correct a verified submission by verifying it again; nothing
// leaves rejected.
var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionPending:  {SubmissionVerified, SubmissionRejected},
	SubmissionVerified: {SubmissionVerified},
	SubmissionRejected: {},
}

func (s SubmissionStatus) IsValid() bool {
	_, ok := submissionTransitions[s]
	return ok
}

// CanTransitionTo reports whether a reviewer may move a submission from s to next.
func (s SubmissionStatus) CanTransitionTo(next SubmissionStatus) bool {
	return slices.Contains(submissionTransitions[s], next)
}

// SystemVerifier is recorded on submissions verified automatically.
const SystemVerifier = "system"

const freeMarkerPrefix = "FREE-"

// NewFreeMarker returns a synthetic reference for submissions that carry no
// payment. Markers are unique so they never collide with each other.
func NewFreeMarker() string {
	return freeMarkerPrefix + uuid.NewString()
}

func IsFreeMarker(ref string) bool {
	return strings.HasPrefix(ref, freeMarkerPrefix)
}

// SubmissionEvent is one line frozen from the cart at checkout.
type SubmissionEvent struct {
	EventID   id.EventID         `json:"event_id"`
	Title     string             `json:"title"`
	RosterIDs []id.ParticipantID `json:"roster_ids"`
	Fee       int64              `json:"fee"`
}

// Submission is the immutable payment intent created at checkout. Only its
// review fields change afterwards.
type Submission struct {
	ID              id.SubmissionID
	ParticipantID   id.ParticipantID
	TeamID          id.TeamID
	TransactionRef  string
	ProofRef        string
	Free            bool
	TotalAmount     int64
	Currency        string
	Events          []SubmissionEvent
	Status          SubmissionStatus
	VerifierID      string
	VerifiedAt      *time.Time
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s *Submission) EventIDs() []id.EventID {
	out := make([]id.EventID, len(s.Events))
	for i, e := range s.Events {
		out[i] = e.EventID
	}
	return out
}

func (s *Submission) Clone() *Submission {
	c := *s
	c.Events = make([]SubmissionEvent, len(s.Events))
	for i, e := range s.Events {
		e.RosterIDs = slices.Clone(e.RosterIDs)
		c.Events[i] = e
	}
	if s.VerifiedAt != nil {
		at := *s.VerifiedAt
		c.VerifiedAt = &at
	}
	return &c
}
