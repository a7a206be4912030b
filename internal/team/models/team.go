package models

import (
	"slices"
	"strings"
	"time"

	"github.com/gosimple/slug"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
)

// MaxNameLength bounds a team's display name.
const MaxNameLength = 80

// Team is a roster of participants competing together on one track. The
// leader is always a member.
type Team struct {
	ID           id.TeamID
	Name         string
	Slug         string
	LeaderID     id.ParticipantID
	Members      []id.ParticipantID
	Track        id.TrackType
	Locked       bool
	MaxMembers   int
	Invitations  []id.ParticipantID
	JoinRequests []id.ParticipantID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTeam creates a team led by leader.
func NewTeam(teamID id.TeamID, name string, leader id.ParticipantID, track id.TrackType, maxMembers int, now time.Time) (*Team, error) {
	name = strings.TrimSpace(name)
	switch {
	case teamID.IsNil():
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "team id is required")
	case name == "":
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "team name is required")
	case len(name) > MaxNameLength:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "team name is too long")
	case leader.IsNil():
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "team leader is required")
	case maxMembers < 1:
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "team size limit must be positive")
	}
	handle := slug.Make(name)
	if handle == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "team name must contain letters or digits")
	}
	return &Team{
		ID:         teamID,
		Name:       name,
		Slug:       handle,
		LeaderID:   leader,
		Members:    []id.ParticipantID{leader},
		Track:      track,
		MaxMembers: maxMembers,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (t *Team) IsLeader(participantID id.ParticipantID) bool {
	return t.LeaderID == participantID
}

func (t *Team) HasMember(participantID id.ParticipantID) bool {
	return slices.Contains(t.Members, participantID)
}

func (t *Team) HasInvitation(participantID id.ParticipantID) bool {
	return slices.Contains(t.Invitations, participantID)
}

func (t *Team) HasJoinRequest(participantID id.ParticipantID) bool {
	return slices.Contains(t.JoinRequests, participantID)
}

func (t *Team) IsFull() bool {
	return len(t.Members) >= t.MaxMembers
}

// ContainsAll reports whether every roster id is a member.
func (t *Team) ContainsAll(roster []id.ParticipantID) bool {
	for _, p := range roster {
		if !t.HasMember(p) {
			return false
		}
	}
	return true
}

// AddMember adds a participant and clears any pending invitation or request
// they had with this team.
func (t *Team) AddMember(participantID id.ParticipantID, now time.Time) {
	if !t.HasMember(participantID) {
		t.Members = append(t.Members, participantID)
	}
	t.Invitations = remove(t.Invitations, participantID)
	t.JoinRequests = remove(t.JoinRequests, participantID)
	t.UpdatedAt = now
}

func (t *Team) RemoveMember(participantID id.ParticipantID, now time.Time) {
	t.Members = remove(t.Members, participantID)
	t.UpdatedAt = now
}

func (t *Team) AddInvitation(participantID id.ParticipantID, now time.Time) {
	if !t.HasInvitation(participantID) {
		t.Invitations = append(t.Invitations, participantID)
	}
	t.UpdatedAt = now
}

// ConsumeInvitation removes a pending invitation, reporting whether it existed.
func (t *Team) ConsumeInvitation(participantID id.ParticipantID, now time.Time) bool {
	if !t.HasInvitation(participantID) {
		return false
	}
	t.Invitations = remove(t.Invitations, participantID)
	t.UpdatedAt = now
	return true
}

func (t *Team) AddJoinRequest(participantID id.ParticipantID, now time.Time) {
	if !t.HasJoinRequest(participantID) {
		t.JoinRequests = append(t.JoinRequests, participantID)
	}
	t.UpdatedAt = now
}

// ConsumeJoinRequest removes a pending join request, reporting whether it existed.
func (t *Team) ConsumeJoinRequest(participantID id.ParticipantID, now time.Time) bool {
	if !t.HasJoinRequest(participantID) {
		return false
	}
	t.JoinRequests = remove(t.JoinRequests, participantID)
	t.UpdatedAt = now
	return true
}

func (t *Team) SetLocked(locked bool, now time.Time) {
	t.Locked = locked
	t.UpdatedAt = now
}

// Clone returns a deep copy safe to mutate outside the store.
func (t *Team) Clone() *Team {
	c := *t
	c.Members = slices.Clone(t.Members)
	c.Invitations = slices.Clone(t.Invitations)
	c.JoinRequests = slices.Clone(t.JoinRequests)
	return &c
}

func remove(ids []id.ParticipantID, target id.ParticipantID) []id.ParticipantID {
	return slices.DeleteFunc(ids, func(p id.ParticipantID) bool { return p == target })
}
