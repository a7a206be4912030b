package models

import (
	"strings"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
)

// Event is the catalog's view of one competition event. Fees are in minor
// currency units.
type Event struct {
	ID              id.EventID `json:"id"`
	Title           string     `json:"title"`
	Fee             int64      `json:"fee"`
	Currency        string     `json:"currency"`
	TeamEvent       bool       `json:"team_event"`
	MinTeamSize     int        `json:"min_team_size"`
	MaxTeamSize     int        `json:"max_team_size"`
	Capacity        int        `json:"capacity"`
	RegisteredCount int        `json:"registered_count"`
	Open            bool       `json:"open"`
}

// Validate checks the invariants of a catalog entry.
func (e *Event) Validate() error {
	e.Title = strings.TrimSpace(e.Title)
	e.Currency = strings.ToUpper(strings.TrimSpace(e.Currency))
	switch {
	case e.ID.IsNil():
		return dErrors.New(dErrors.CodeInvariantViolation, "event id is required")
	case e.Title == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "event title is required")
	case e.Fee < 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "event fee must not be negative")
	case e.Currency == "":
		return dErrors.New(dErrors.CodeInvariantViolation, "event currency is required")
	case e.Capacity < 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "event capacity must not be negative")
	}
	if !e.TeamEvent {
		e.MinTeamSize, e.MaxTeamSize = 1, 1
	}
	if e.MinTeamSize < 1 || e.MaxTeamSize < e.MinTeamSize {
		return dErrors.New(dErrors.CodeInvariantViolation, "event team size bounds are invalid")
	}
	return nil
}

// Available reports whether the event accepts new registrations.
func (e *Event) Available() bool {
	if !e.Open {
		return false
	}
	return e.Capacity == 0 || e.RegisteredCount < e.Capacity
}

// RosterSizeAllowed reports whether n participants may register together.
func (e *Event) RosterSizeAllowed(n int) bool {
	return n >= e.MinTeamSize && n <= e.MaxTeamSize
}

// IsFree reports whether the event costs nothing.
func (e *Event) IsFree() bool {
	return e.Fee == 0
}
