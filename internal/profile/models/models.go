package models

import (
	"slices"
	"strings"
	"time"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
)

// Field limits for profile input.
const (
	MaxNameLength        = 120
	MaxEmailLength       = 254
	MaxInstitutionLength = 200
)

// Participant is the internal record behind one external identity.
type Participant struct {
	ID          id.ParticipantID
	ExternalID  string
	Name        string
	Email       string
	Institution string
	// Roles are capabilities granted to the participant, such as "admin".
	Roles []string
	// RegisteredEvents and PaidEvents are sets; order carries no meaning.
	RegisteredEvents []id.EventID
	PaidEvents       []id.EventID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewParticipant validates the profile fields and builds a participant.
func NewParticipant(participantID id.ParticipantID, externalID, name, email, institution string, now time.Time) (*Participant, error) {
	p := &Participant{
		ID:         participantID,
		ExternalID: strings.TrimSpace(externalID),
		CreatedAt:  now,
	}
	if p.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "participant id is required")
	}
	if p.ExternalID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "external id is required")
	}
	if err := p.UpdateDetails(name, email, institution, now); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateDetails replaces the editable profile fields.
func (p *Participant) UpdateDetails(name, email, institution string, now time.Time) error {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	institution = strings.TrimSpace(institution)

	switch {
	case name == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "name is required")
	case len(name) > MaxNameLength:
		return dErrors.New(dErrors.CodeInvariantViolation, "name is too long")
	case email == "" || !strings.Contains(email, "@"):
		return dErrors.New(dErrors.CodeInvariantViolation, "a valid email is required")
	case len(email) > MaxEmailLength:
		return dErrors.New(dErrors.CodeInvariantViolation, "email is too long")
	case institution == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "institution is required")
	case len(institution) > MaxInstitutionLength:
		return dErrors.New(dErrors.CodeInvariantViolation, "institution is too long")
	}

	p.Name = name
	p.Email = email
	p.Institution = institution
	p.UpdatedAt = now
	return nil
}

// HasRole reports whether the participant holds role.
func (p *Participant) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// HasPaid reports whether eventID is in the paid-event set.
func (p *Participant) HasPaid(eventID id.EventID) bool {
	return slices.Contains(p.PaidEvents, eventID)
}

// SameInstitution compares institutions case-insensitively.
func (p *Participant) SameInstitution(other *Participant) bool {
	return strings.EqualFold(p.Institution, other.Institution)
}

// AddEvents merges ids into the registered and paid sets. It reports whether
// anything changed.
func (p *Participant) AddEvents(registered, paid []id.EventID) bool {
	var changed bool
	p.RegisteredEvents, changed = union(p.RegisteredEvents, registered)
	var paidChanged bool
	p.PaidEvents, paidChanged = union(p.PaidEvents, paid)
	return changed || paidChanged
}

func union(set, add []id.EventID) ([]id.EventID, bool) {
	changed := false
	for _, e := range add {
		if !slices.Contains(set, e) {
			set = append(set, e)
			changed = true
		}
	}
	return set, changed
}

// Profile is a participant decorated with the teams they belong to.
type Profile struct {
	*Participant
	Teams map[id.TrackType]id.TeamID
}
