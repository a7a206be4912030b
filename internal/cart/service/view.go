package service

import (
	"context"
	"errors"
	"time"

	"regdesk/internal/cart/models"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/sentinel"
)

// LineView is a cart item priced from the live catalog.
type LineView struct {
	EventID   id.EventID
	Title     string
	Fee       int64
	TeamEvent bool
	RosterIDs []id.ParticipantID
	Available bool
	AddedAt   time.Time
}

// View is the priced cart. The total is recomputed on every read and covers
// available lines only.
type View struct {
	ParticipantID id.ParticipantID
	TeamID        id.TeamID
	Items         []LineView
	Total         int64
	ItemCount     int
	Currency      string
	ExpiresAt     *time.Time
}

func (s *Service) view(ctx context.Context, participantID id.ParticipantID, cart *models.Cart) (*View, error) {
	v := &View{ParticipantID: participantID, Items: []LineView{}}
	if cart == nil {
		return v, nil
	}
	expires := cart.ExpiresAt
	v.TeamID = cart.TeamID
	v.Currency = cart.Currency
	v.ExpiresAt = &expires
	for _, it := range cart.Items {
		line := LineView{EventID: it.EventID, TeamEvent: it.TeamEvent, RosterIDs: it.RosterIDs, AddedAt: it.AddedAt}
		event, err := s.catalog.Get(ctx, it.EventID)
		switch {
		case err == nil:
			line.Title = event.Title
			line.Fee = event.Fee
			line.Available = event.Available()
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to price cart")
		}
		if line.Available {
			v.Total += line.Fee
		}
		v.Items = append(v.Items, line)
	}
	v.ItemCount = len(v.Items)
	return v, nil
}
