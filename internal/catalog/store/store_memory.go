package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"regdesk/internal/catalog/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

type claimKey struct {
	event      id.EventID
	submission id.SubmissionID
}

// InMemory holds the catalog and the counter claims.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.EventID]*models.Event
	claims map[claimKey]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		events: make(map[id.EventID]*models.Event),
		claims: make(map[claimKey]struct{}),
	}
}

// Put inserts or replaces an event, keeping its live counter.
func (s *InMemory) Put(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	if existing, ok := s.events[e.ID]; ok {
		c.RegisteredCount = existing.RegisteredCount
	}
	s.events[e.ID] = &c
	return nil
}

func (s *InMemory) Get(_ context.Context, eventID id.EventID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Event, 0, len(s.events))
	for _, e := range s.events {
		c := *e
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.Event) int { return cmp.Compare(a.Title, b.Title) })
	return out, nil
}

// IncrementRegistered claims (event, submission) and bumps the counter only
// when the claim is new. It reports whether the counter moved.
func (s *InMemory) IncrementRegistered(_ context.Context, eventID id.EventID, submissionID id.SubmissionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	key := claimKey{event: eventID, submission: submissionID}
	if _, claimed := s.claims[key]; claimed {
		return false, nil
	}
	s.claims[key] = struct{}{}
	e.RegisteredCount++
	return true, nil
}
