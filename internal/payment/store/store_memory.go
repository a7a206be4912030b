package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"regdesk/internal/payment/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

// ListFilter selects a page of submissions. An empty Status matches all.
type ListFilter struct {
	Status models.SubmissionStatus
	Offset int
	Limit  int
}

// InMemorySubmissions enforces unique transaction references among non-free
// submissions with an index.
type InMemorySubmissions struct {
	mu    sync.RWMutex
	byID  map[id.SubmissionID]*models.Submission
	byRef map[string]id.SubmissionID
}

func NewInMemorySubmissions() *InMemorySubmissions {
	return &InMemorySubmissions{
		byID:  make(map[id.SubmissionID]*models.Submission),
		byRef: make(map[string]id.SubmissionID),
	}
}

func (s *InMemorySubmissions) Create(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[sub.ID]; exists {
		return sentinel.ErrConflict
	}
	if !sub.Free {
		if _, taken := s.byRef[sub.TransactionRef]; taken {
			return sentinel.ErrConflict
		}
		s.byRef[sub.TransactionRef] = sub.ID
	}
	s.byID[sub.ID] = sub.Clone()
	return nil
}

func (s *InMemorySubmissions) FindByID(_ context.Context, submissionID id.SubmissionID) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.byID[submissionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return sub.Clone(), nil
}

// Transition applies update only while the submission is still in from.
func (s *InMemorySubmissions) Transition(_ context.Context, submissionID id.SubmissionID, from models.SubmissionStatus, update func(*models.Submission)) (*models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.byID[submissionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if sub.Status != from {
		return nil, sentinel.ErrInvalidState
	}
	next := sub.Clone()
	update(next)
	s.byID[submissionID] = next
	return next.Clone(), nil
}

// List returns newest first with the total matching count.
func (s *InMemorySubmissions) List(_ context.Context, filter ListFilter) ([]*models.Submission, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Submission
	for _, sub := range s.byID {
		if filter.Status == "" || sub.Status == filter.Status {
			matched = append(matched, sub)
		}
	}
	slices.SortFunc(matched, func(a, b *models.Submission) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
	total := len(matched)
	start := min(filter.Offset, total)
	end := total
	if filter.Limit > 0 {
		end = min(start+filter.Limit, total)
	}
	out := make([]*models.Submission, 0, end-start)
	for _, sub := range matched[start:end] {
		out = append(out, sub.Clone())
	}
	return out, total, nil
}

func (s *InMemorySubmissions) CountByStatus(_ context.Context) (map[models.SubmissionStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := map[models.SubmissionStatus]int{
		models.SubmissionPending:  0,
		models.SubmissionVerified: 0,
		models.SubmissionRejected: 0,
	}
	for _, sub := range s.byID {
		counts[sub.Status]++
	}
	return counts, nil
}

type registrationKey struct {
	event      id.EventID
	registrant string
}

// InMemoryRegistrations keeps one registration per (event, registrant).
type InMemoryRegistrations struct {
	mu    sync.RWMutex
	byKey map[registrationKey]*models.Registration
}

func NewInMemoryRegistrations() *InMemoryRegistrations {
	return &InMemoryRegistrations{byKey: make(map[registrationKey]*models.Registration)}
}

// Upsert inserts r or updates the existing row for its key. A row that is
// active under a different submission is never taken over: ErrAlreadyUsed.
// The stored AmountExpected and ID survive updates.
func (s *InMemoryRegistrations) Upsert(_ context.Context, r *models.Registration) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := registrationKey{r.EventID, r.RegistrantKey}
	existing, ok := s.byKey[key]
	if !ok {
		s.byKey[key] = r.Clone()
		return r.Clone(), nil
	}
	if existing.Status.IsActive() && !existing.SubmissionID.IsNil() && existing.SubmissionID != r.SubmissionID {
		return nil, sentinel.ErrAlreadyUsed
	}
	next := existing.Clone()
	next.TeamID = r.TeamID
	next.RosterIDs = slices.Clone(r.RosterIDs)
	next.Status = r.Status
	next.SubmissionID = r.SubmissionID
	next.AmountPaid = nil
	next.UpdatedAt = r.UpdatedAt
	s.byKey[key] = next
	return next.Clone(), nil
}

func (s *InMemoryRegistrations) FindActive(_ context.Context, eventID id.EventID, registrantKey string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byKey[registrationKey{eventID, registrantKey}]
	if !ok || !r.Status.IsActive() {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemoryRegistrations) FindByEventAndSubmission(_ context.Context, eventID id.EventID, submissionID id.SubmissionID) (*models.Registration, error) {
	return s.findOne(func(r *models.Registration) bool {
		return r.EventID == eventID && r.SubmissionID == submissionID
	})
}

func (s *InMemoryRegistrations) FindActiveByEventAndTeam(_ context.Context, eventID id.EventID, teamID id.TeamID) (*models.Registration, error) {
	return s.findOne(func(r *models.Registration) bool {
		return r.EventID == eventID && r.TeamID == teamID && r.Status.IsActive()
	})
}

func (s *InMemoryRegistrations) FindActiveByEventAndRosterMember(_ context.Context, eventID id.EventID, participantID id.ParticipantID) (*models.Registration, error) {
	return s.findOne(func(r *models.Registration) bool {
		return r.EventID == eventID && r.HasRosterMember(participantID) && r.Status.IsActive()
	})
}

func (s *InMemoryRegistrations) ListBySubmission(_ context.Context, submissionID id.SubmissionID) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Registration
	for _, r := range s.byKey {
		if r.SubmissionID == submissionID {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Registration) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *InMemoryRegistrations) Update(_ context.Context, r *models.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := registrationKey{r.EventID, r.RegistrantKey}
	existing, ok := s.byKey[key]
	if !ok || existing.ID != r.ID {
		return sentinel.ErrNotFound
	}
	s.byKey[key] = r.Clone()
	return nil
}

func (s *InMemoryRegistrations) findOne(match func(*models.Registration) bool) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.byKey {
		if match(r) {
			return r.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}
