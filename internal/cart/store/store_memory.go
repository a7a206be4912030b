package store

import (
	"context"
	"sync"
	"time"

	"regdesk/internal/cart/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

// MutateFunc receives the live cart (nil when absent or expired) and returns
// the cart to store. A nil or empty result deletes the cart.
type MutateFunc func(current *models.Cart) (*models.Cart, error)

// InMemory keeps carts in a map. Expired carts read as absent and are
// removed by DeleteExpired.
type InMemory struct {
	mu    sync.Mutex
	carts map[id.ParticipantID]*models.Cart
}

func NewInMemory() *InMemory {
	return &InMemory{carts: make(map[id.ParticipantID]*models.Cart)}
}

func (s *InMemory) Get(_ context.Context, participantID id.ParticipantID, now time.Time) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[participantID]
	if !ok || c.Expired(now) {
		return nil, sentinel.ErrNotFound
	}
	return c.Clone(), nil
}

// Mutate applies fn under the store lock.
func (s *InMemory) Mutate(_ context.Context, participantID id.ParticipantID, now time.Time, fn MutateFunc) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var current *models.Cart
	if c, ok := s.carts[participantID]; ok && !c.Expired(now) {
		current = c.Clone()
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	if next == nil || next.IsEmpty() {
		delete(s.carts, participantID)
		return nil, nil
	}
	s.carts[participantID] = next.Clone()
	return next, nil
}

func (s *InMemory) Delete(_ context.Context, participantID id.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, participantID)
	return nil
}

// DeleteExpired drops every cart whose lifetime ended before now.
func (s *InMemory) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for pid, c := range s.carts {
		if c.Expired(now) {
			delete(s.carts, pid)
			removed++
		}
	}
	return removed, nil
}
