package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"regdesk/internal/cart/metrics"
	"regdesk/internal/cart/models"
	"regdesk/internal/cart/store"
	catalogmodels "regdesk/internal/catalog/models"
	paymentmodels "regdesk/internal/payment/models"
	teammodels "regdesk/internal/team/models"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/sentinel"
	pstrings "regdesk/pkg/platform/strings"
	"regdesk/pkg/requestcontext"
)

// Store persists carts. Get and Mutate treat expired carts as absent.
type Store interface {
	Get(ctx context.Context, participantID id.ParticipantID, now time.Time) (*models.Cart, error)
	Mutate(ctx context.Context, participantID id.ParticipantID, now time.Time, fn store.MutateFunc) (*models.Cart, error)
	Delete(ctx context.Context, participantID id.ParticipantID) error
}

type Catalog interface {
	Get(ctx context.Context, eventID id.EventID) (*catalogmodels.Event, error)
}

// Teams returns domain errors.
type Teams interface {
	Get(ctx context.Context, teamID id.TeamID) (*teammodels.Team, error)
}

type Registrations interface {
	FindActive(ctx context.Context, eventID id.EventID, registrantKey string) (*paymentmodels.Registration, error)
}

const defaultTTL = 24 * time.Hour

type Service struct {
	carts         Store
	catalog       Catalog
	teams         Teams
	registrations Registrations
	ttl           time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTTL sets the lifetime of a newly created cart.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(carts Store, catalog Catalog, teams Teams, registrations Registrations, opts ...Option) *Service {
	s := &Service{
		carts:         carts,
		catalog:       catalog,
		teams:         teams,
		registrations: registrations,
		ttl:           defaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// AddItemInput selects an event. Team events need TeamID; an empty roster
// means the whole team. Individual events always register the caller.
type AddItemInput struct {
	EventID   id.EventID
	TeamID    id.TeamID
	RosterIDs []id.ParticipantID
}

// AddItem validates the event and roster and appends the line, creating the
// cart when absent.
func (s *Service) AddItem(ctx context.Context, participantID id.ParticipantID, in AddItemInput) (*View, error) {
	event, err := s.event(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if !event.Available() {
		return nil, dErrors.New(dErrors.CodeEventUnavailable, "event is not accepting registrations")
	}

	var (
		teamID id.TeamID
		roster []id.ParticipantID
	)
	if event.TeamEvent {
		if in.TeamID.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "team events require a team")
		}
		team, err := s.teams.Get(ctx, in.TeamID)
		if err != nil {
			return nil, err
		}
		if !team.IsLeader(participantID) {
			return nil, dErrors.New(dErrors.CodeNotLeader, "only the team leader can register the team")
		}
		roster = pstrings.Dedupe(in.RosterIDs)
		if len(roster) == 0 {
			roster = slices.Clone(team.Members)
		}
		if !team.ContainsAll(roster) {
			return nil, dErrors.New(dErrors.CodeRosterNotInTeam, "roster includes participants outside the team")
		}
		if !event.RosterSizeAllowed(len(roster)) {
			return nil, dErrors.New(dErrors.CodeRosterSizeOutOfBounds, "roster size is outside the event's limits")
		}
		teamID = team.ID
	} else {
		roster = []id.ParticipantID{participantID}
	}

	if err := s.ensureNotRegistered(ctx, event.ID, paymentmodels.RegistrantKey(teamID, participantID)); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	cart, err := s.carts.Mutate(ctx, participantID, now, func(current *models.Cart) (*models.Cart, error) {
		c := current
		if c == nil {
			c = models.New(participantID, now, s.ttl)
		}
		switch {
		case event.TeamEvent && !c.TeamID.IsNil() && c.TeamID != teamID:
			return nil, dErrors.New(dErrors.CodeValidation, "cart already holds items for another team")
		case c.Currency != "" && c.Currency != event.Currency:
			return nil, dErrors.New(dErrors.CodeValidation, "cart items must share one currency")
		case c.HasEvent(event.ID):
			return nil, dErrors.New(dErrors.CodeEventAlreadyInCart, "event is already in the cart")
		}
		if event.TeamEvent {
			c.TeamID = teamID
		}
		c.Currency = event.Currency
		c.Items = append(c.Items, models.Item{
			EventID:   event.ID,
			TeamEvent: event.TeamEvent,
			RosterIDs: roster,
			AddedAt:   now,
		})
		return c, nil
	})
	if err != nil {
		return nil, wrapCartErr(err, "add item")
	}
	if s.metrics != nil {
		s.metrics.IncrementItemsAdded()
	}
	s.logger.InfoContext(ctx, "cart item added",
		"request_id", requestcontext.RequestID(ctx),
		"participant_id", participantID.String(),
		"event_id", event.ID.String(),
	)
	return s.view(ctx, participantID, cart)
}

// RemoveItem drops one line; the cart is deleted once empty.
func (s *Service) RemoveItem(ctx context.Context, participantID id.ParticipantID, eventID id.EventID) (*View, error) {
	cart, err := s.carts.Mutate(ctx, participantID, requestcontext.Now(ctx), func(current *models.Cart) (*models.Cart, error) {
		if current == nil || !current.Remove(eventID) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event is not in the cart")
		}
		return current, nil
	})
	if err != nil {
		return nil, wrapCartErr(err, "remove item")
	}
	if s.metrics != nil {
		s.metrics.IncrementItemsRemoved()
	}
	return s.view(ctx, participantID, cart)
}

// Get prices the live cart. An absent cart is an empty view.
func (s *Service) Get(ctx context.Context, participantID id.ParticipantID) (*View, error) {
	cart, err := s.carts.Get(ctx, participantID, requestcontext.Now(ctx))
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cart")
	}
	return s.view(ctx, participantID, cart)
}

func (s *Service) ensureNotRegistered(ctx context.Context, eventID id.EventID, registrantKey string) error {
	_, err := s.registrations.FindActive(ctx, eventID, registrantKey)
	switch {
	case err == nil:
		return dErrors.New(dErrors.CodeAlreadyRegistered, "already registered for this event")
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check registrations")
	}
}

func (s *Service) event(ctx context.Context, eventID id.EventID) (*catalogmodels.Event, error) {
	event, err := s.catalog.Get(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "event not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
	}
	return event, nil
}

func wrapCartErr(err error, action string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "cart was modified concurrently, retry")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeConflict, "cart expired, retry")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}
