package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "regdesk/pkg/domain-errors"
)

// Typed identifiers keep participant, team, event, submission and registration
// ids from being mixed up at compile time. All of them are UUIDs underneath.
type (
	ParticipantID  uuid.UUID
	TeamID         uuid.UUID
	EventID        uuid.UUID
	SubmissionID   uuid.UUID
	RegistrationID uuid.UUID
)

// maxIDLength bounds raw input before it reaches uuid.Parse.
const maxIDLength = 64

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if len(raw) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

func unmarshalUUID(kind string, text []byte) (uuid.UUID, error) {
	if len(text) == 0 {
		return uuid.Nil, nil
	}
	return parseUUID(kind, string(text))
}

// ParseParticipantID parses a participant id from external input.
func ParseParticipantID(s string) (ParticipantID, error) {
	u, err := parseUUID("participant_id", s)
	return ParticipantID(u), err
}

func NewParticipantID() ParticipantID { return ParticipantID(uuid.New()) }
func (id ParticipantID) String() string { return uuid.UUID(id).String() }
func (id ParticipantID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ParticipantID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *ParticipantID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("participant_id", text)
	if err != nil {
		return err
	}
	*id = ParticipantID(u)
	return nil
}

// ParseTeamID parses a team id from external input.
func ParseTeamID(s string) (TeamID, error) {
	u, err := parseUUID("team_id", s)
	return TeamID(u), err
}

func NewTeamID() TeamID { return TeamID(uuid.New()) }
func (id TeamID) String() string { return uuid.UUID(id).String() }
func (id TeamID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TeamID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *TeamID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("team_id", text)
	if err != nil {
		return err
	}
	*id = TeamID(u)
	return nil
}

// ParseEventID parses an event id from external input.
func ParseEventID(s string) (EventID, error) {
	u, err := parseUUID("event_id", s)
	return EventID(u), err
}

func NewEventID() EventID { return EventID(uuid.New()) }
func (id EventID) String() string { return uuid.UUID(id).String() }
func (id EventID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id EventID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *EventID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("event_id", text)
	if err != nil {
		return err
	}
	*id = EventID(u)
	return nil
}

// ParseSubmissionID parses a payment submission id from external input.
func ParseSubmissionID(s string) (SubmissionID, error) {
	u, err := parseUUID("submission_id", s)
	return SubmissionID(u), err
}

func NewSubmissionID() SubmissionID { return SubmissionID(uuid.New()) }
func (id SubmissionID) String() string { return uuid.UUID(id).String() }
func (id SubmissionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id SubmissionID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *SubmissionID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("submission_id", text)
	if err != nil {
		return err
	}
	*id = SubmissionID(u)
	return nil
}

func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) MarshalText() ([]byte, error) {
	if id.IsNil() {
		return []byte{}, nil
	}
	return []byte(id.String()), nil
}

func (id *RegistrationID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("registration_id", text)
	if err != nil {
		return err
	}
	*id = RegistrationID(u)
	return nil
}
