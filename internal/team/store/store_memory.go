package store

import (
	"context"
	"sync"

	"regdesk/internal/team/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

type memberKey struct {
	participant id.ParticipantID
	track       id.TrackType
}

// InMemory keeps teams and a membership index whose keys are unique per
// (participant, track).
type InMemory struct {
	mu      sync.Mutex
	teams   map[id.TeamID]*models.Team
	members map[memberKey]id.TeamID
}

func NewInMemory() *InMemory {
	return &InMemory{
		teams:   make(map[id.TeamID]*models.Team),
		members: make(map[memberKey]id.TeamID),
	}
}

// Create stores a new team. ErrConflict when the leader already belongs to a
// team on the same track.
func (s *InMemory) Create(_ context.Context, t *models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.teams[t.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, p := range t.Members {
		if _, taken := s.members[memberKey{p, t.Track}]; taken {
			return sentinel.ErrConflict
		}
	}
	c := t.Clone()
	s.teams[t.ID] = c
	for _, p := range c.Members {
		s.members[memberKey{p, c.Track}] = c.ID
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, teamID id.TeamID) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teams[teamID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemory) FindByMember(_ context.Context, participantID id.ParticipantID, track id.TrackType) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	teamID, ok := s.members[memberKey{participantID, track}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.teams[teamID].Clone(), nil
}

func (s *InMemory) MembershipsOf(_ context.Context, participantID id.ParticipantID) (map[id.TrackType]id.TeamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[id.TrackType]id.TeamID)
	for _, track := range []id.TrackType{id.TrackStandard, id.TrackOpen} {
		if teamID, ok := s.members[memberKey{participantID, track}]; ok {
			out[track] = teamID
		}
	}
	return out, nil
}

// Execute runs validate then mutate on a copy of the team under the store
// lock and commits the result. The membership index is reconciled with the
// new member list; a member already on another team of the track aborts the
// write with ErrConflict.
func (s *InMemory) Execute(_ context.Context, teamID id.TeamID, validate func(*models.Team) error, mutate func(*models.Team)) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.teams[teamID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	next := current.Clone()
	if err := validate(next); err != nil {
		return nil, err
	}
	mutate(next)

	for _, p := range next.Members {
		if owner, taken := s.members[memberKey{p, next.Track}]; taken && owner != teamID {
			return nil, sentinel.ErrConflict
		}
	}
	for _, p := range current.Members {
		if !next.HasMember(p) {
			delete(s.members, memberKey{p, current.Track})
		}
	}
	for _, p := range next.Members {
		s.members[memberKey{p, next.Track}] = teamID
	}
	s.teams[teamID] = next
	return next.Clone(), nil
}

// Delete removes a team and every membership it holds once validate passes.
func (s *InMemory) Delete(_ context.Context, teamID id.TeamID, validate func(*models.Team) error) (*models.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.teams[teamID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(current.Clone()); err != nil {
		return nil, err
	}
	for _, p := range current.Members {
		delete(s.members, memberKey{p, current.Track})
	}
	delete(s.teams, teamID)
	return current.Clone(), nil
}
