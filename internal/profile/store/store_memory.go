package store

import (
	"context"
	"slices"
	"sync"

	"regdesk/internal/profile/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

// InMemory keeps participants in maps guarded by one RWMutex.
type InMemory struct {
	mu         sync.RWMutex
	byID       map[id.ParticipantID]*models.Participant
	byExternal map[string]id.ParticipantID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:       make(map[id.ParticipantID]*models.Participant),
		byExternal: make(map[string]id.ParticipantID),
	}
}

func (s *InMemory) Save(_ context.Context, p *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byExternal[p.ExternalID]; ok && owner != p.ID {
		return sentinel.ErrConflict
	}
	if existing, ok := s.byID[p.ID]; ok {
		// Event sets and roles are owned by AddEvents and GrantRole.
		next := clone(p)
		next.Roles = slices.Clone(existing.Roles)
		next.RegisteredEvents = slices.Clone(existing.RegisteredEvents)
		next.PaidEvents = slices.Clone(existing.PaidEvents)
		next.CreatedAt = existing.CreatedAt
		s.byID[p.ID] = next
		return nil
	}
	s.byID[p.ID] = clone(p)
	s.byExternal[p.ExternalID] = p.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[participantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(p), nil
}

func (s *InMemory) FindByExternalID(_ context.Context, externalID string) (*models.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.byExternal[externalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[pid]), nil
}

func (s *InMemory) AddEvents(_ context.Context, participantID id.ParticipantID, registered, paid []id.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[participantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.AddEvents(registered, paid)
	return nil
}

func (s *InMemory) GrantRole(_ context.Context, participantID id.ParticipantID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[participantID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !p.HasRole(role) {
		p.Roles = append(p.Roles, role)
	}
	return nil
}

func clone(p *models.Participant) *models.Participant {
	c := *p
	c.Roles = slices.Clone(p.Roles)
	c.RegisteredEvents = slices.Clone(p.RegisteredEvents)
	c.PaidEvents = slices.Clone(p.PaidEvents)
	return &c
}
