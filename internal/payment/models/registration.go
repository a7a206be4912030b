package models

import (
	"slices"
	"time"

	id "regdesk/pkg/domain"
)

// RegistrationStatus is the closed set of registration payment states.
type RegistrationStatus string

const (
	RegistrationInitiated           RegistrationStatus = "initiated"
	RegistrationPending             RegistrationStatus = "pending"
	RegistrationVerificationPending RegistrationStatus = "verification_pending"
	RegistrationPaid                RegistrationStatus = "paid"
	RegistrationManualVerified      RegistrationStatus = "manual_verified"
	RegistrationRejected            RegistrationStatus = "rejected"
	RegistrationRefunded            RegistrationStatus = "refunded"
)

// ActiveStatuses hold a registrant's place for an event.
var ActiveStatuses = []RegistrationStatus{
	RegistrationPending,
	RegistrationVerificationPending,
	RegistrationPaid,
	RegistrationManualVerified,
}

func (s RegistrationStatus) IsActive() bool {
	return slices.Contains(ActiveStatuses, s)
}

// RegistrantKey identifies who holds a registration: the team for team
// events, the participant otherwise.
func RegistrantKey(teamID id.TeamID, participantID id.ParticipantID) string {
	if !teamID.IsNil() {
		return "team:" + teamID.String()
	}
	return "participant:" + participantID.String()
}

// Registration is the single live record per (event, registrant).
type Registration struct {
	ID             id.RegistrationID
	EventID        id.EventID
	RegistrantKey  string
	TeamID         id.TeamID
	RosterIDs      []id.ParticipantID
	Status         RegistrationStatus
	SubmissionID   id.SubmissionID
	AmountExpected int64
	AmountPaid     *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *Registration) HasRosterMember(participantID id.ParticipantID) bool {
	return slices.Contains(r.RosterIDs, participantID)
}

func (r *Registration) Clone() *Registration {
	c := *r
	c.RosterIDs = slices.Clone(r.RosterIDs)
	if r.AmountPaid != nil {
		paid := *r.AmountPaid
		c.AmountPaid = &paid
	}
	return &c
}
