package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cartmodels "regdesk/internal/cart/models"
	catalogmodels "regdesk/internal/catalog/models"
	"regdesk/internal/checkout/metrics"
	"regdesk/internal/payment/models"
	"regdesk/internal/platform/config"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/platform/tx"
	"regdesk/pkg/requestcontext"
)

type Carts interface {
	Get(ctx context.Context, participantID id.ParticipantID, now time.Time) (*cartmodels.Cart, error)
	Delete(ctx context.Context, participantID id.ParticipantID) error
}

type Catalog interface {
	Get(ctx context.Context, eventID id.EventID) (*catalogmodels.Event, error)
	IncrementRegistered(ctx context.Context, eventID id.EventID, submissionID id.SubmissionID) (bool, error)
}

// Submissions must reject a second non-free submission with the same
// transaction reference with sentinel.ErrConflict.
type Submissions interface {
	Create(ctx context.Context, sub *models.Submission) error
}

// Registrations must refuse to move a registration that is active under a
// different submission with sentinel.ErrAlreadyUsed.
type Registrations interface {
	FindActive(ctx context.Context, eventID id.EventID, registrantKey string) (*models.Registration, error)
	Upsert(ctx context.Context, r *models.Registration) (*models.Registration, error)
}

// Profiles returns domain errors.
type Profiles interface {
	AddEvents(ctx context.Context, participantID id.ParticipantID, registered, paid []id.EventID) error
}

type Service struct {
	carts         Carts
	catalog       Catalog
	submissions   Submissions
	registrations Registrations
	profiles      Profiles
	tx            tx.Runner
	target        config.PaymentTarget
	logger        *slog.Logger
	metrics       *metrics.Metrics
	tracer        trace.Tracer
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

// WithPaymentTarget sets the payee details shown on the summary.
func WithPaymentTarget(target config.PaymentTarget) Option {
	return func(s *Service) {
		s.target = target
	}
}

func New(carts Carts, catalog Catalog, submissions Submissions, registrations Registrations, profiles Profiles, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		carts:         carts,
		catalog:       catalog,
		submissions:   submissions,
		registrations: registrations,
		profiles:      profiles,
		tx:            runner,
		tracer:        otel.Tracer("regdesk/checkout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Line is a cart item priced at checkout time.
type Line struct {
	EventID   id.EventID
	Title     string
	Fee       int64
	TeamEvent bool
	RosterIDs []id.ParticipantID
	Available bool
}

type Summary struct {
	Items         []Line
	Total         int64
	Currency      string
	ItemCount     int
	PaymentTarget config.PaymentTarget
}

// Summary prices the caller's cart and returns the payment target.
func (s *Service) Summary(ctx context.Context, participantID id.ParticipantID) (*Summary, error) {
	cart, err := s.loadCart(ctx, participantID)
	if err != nil {
		return nil, err
	}
	lines, err := s.price(ctx, cart)
	if err != nil {
		return nil, err
	}
	sum := &Summary{Items: lines, Currency: cart.Currency, ItemCount: len(lines), PaymentTarget: s.target}
	for _, l := range lines {
		if l.Available {
			sum.Total += l.Fee
		}
	}
	return sum, nil
}

type SubmitInput struct {
	TransactionRef string
	ProofRef       string
}

type Result struct {
	Submission         *models.Submission
	RegistrationStatus models.RegistrationStatus
}

// Submit turns the cart into a submission and its registrations in one
// transaction. Free carts are verified immediately.
func (s *Service) Submit(ctx context.Context, participantID id.ParticipantID, in SubmitInput) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.submit",
		trace.WithAttributes(attribute.String("participant_id", participantID.String())))
	defer span.End()

	res, err := s.submit(ctx, participantID, in)
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("submission_id", res.Submission.ID.String()),
		attribute.String("status", string(res.Submission.Status)),
	)
	return res, nil
}

func (s *Service) submit(ctx context.Context, participantID id.ParticipantID, in SubmitInput) (*Result, error) {
	start := time.Now()

	// The cart's team decides which locks the unit of work holds. The cart is
	// read again under those locks.
	peek, err := s.loadCart(ctx, participantID)
	if err != nil {
		return nil, err
	}
	ref := strings.TrimSpace(in.TransactionRef)
	lockKeys := []string{participantID.String()}
	if !peek.TeamID.IsNil() {
		lockKeys = append(lockKeys, "team:"+peek.TeamID.String())
	}
	if ref != "" {
		lockKeys = append(lockKeys, "ref:"+ref)
	}

	var (
		sub       *models.Submission
		regStatus models.RegistrationStatus
	)
	err = s.tx.RunInTx(tx.WithShardKeys(ctx, lockKeys...), func(ctx context.Context) error {
		cart, err := s.loadCart(ctx, participantID)
		if err != nil {
			return err
		}
		if cart.TeamID != peek.TeamID {
			return dErrors.New(dErrors.CodeConflict, "cart changed during checkout, try again")
		}
		var regs []*models.Registration
		sub, regs, err = s.build(ctx, participantID, cart, in)
		if err != nil {
			return err
		}
		regStatus = regs[0].Status

		if err := s.submissions.Create(ctx, sub); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeDuplicateTransaction, "transaction reference was already submitted")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create submission")
		}
		for _, r := range regs {
			if _, err := s.registrations.Upsert(ctx, r); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					return dErrors.New(dErrors.CodeAlreadyRegistered, "already registered for this event")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record registration")
			}
		}
		if !sub.Free {
			return nil
		}
		for _, e := range sub.Events {
			if _, err := s.catalog.IncrementRegistered(ctx, e.EventID, sub.ID); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update event counter")
			}
		}
		eventIDs := sub.EventIDs()
		return s.profiles.AddEvents(ctx, participantID, eventIDs, eventIDs)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeDuplicateTransaction) && s.metrics != nil {
			s.metrics.IncrementDuplicateTransactions()
		}
		s.logger.WarnContext(ctx, "checkout failed",
			"request_id", requestcontext.RequestID(ctx),
			"participant_id", participantID.String(),
			"error", err,
		)
		return nil, err
	}

	if err := s.carts.Delete(ctx, participantID); err != nil {
		s.logger.WarnContext(ctx, "failed to clear cart after checkout",
			"request_id", requestcontext.RequestID(ctx),
			"participant_id", participantID.String(),
			"error", err,
		)
	}

	outcome := "pending"
	if sub.Free {
		outcome = "free"
	}
	if s.metrics != nil {
		s.metrics.IncrementSubmissionsCreated(outcome)
		s.metrics.ObserveSubmitLatency(time.Since(start).Seconds())
	}
	s.logAudit(ctx, "submission_created",
		"participant_id", participantID.String(),
		"submission_id", sub.ID.String(),
		"outcome", outcome,
		"total", sub.TotalAmount,
		"events", len(sub.Events),
	)
	return &Result{Submission: sub, RegistrationStatus: regStatus}, nil
}

// build prices the cart and prepares the submission with one registration
// per line. Every check that can refuse the checkout runs here, before any
// write.
func (s *Service) build(ctx context.Context, participantID id.ParticipantID, cart *cartmodels.Cart, in SubmitInput) (*models.Submission, []*models.Registration, error) {
	now := requestcontext.Now(ctx)
	lines, err := s.price(ctx, cart)
	if err != nil {
		return nil, nil, err
	}
	var total int64
	for _, l := range lines {
		if !l.Available {
			return nil, nil, dErrors.New(dErrors.CodeEventUnavailable, "event "+l.EventID.String()+" is no longer available")
		}
		total += l.Fee
	}

	sub := &models.Submission{
		ID:            id.NewSubmissionID(),
		ParticipantID: participantID,
		TeamID:        cart.TeamID,
		TotalAmount:   total,
		Currency:      cart.Currency,
		Status:        models.SubmissionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	regStatus := models.RegistrationVerificationPending
	if total > 0 {
		sub.TransactionRef = strings.TrimSpace(in.TransactionRef)
		sub.ProofRef = strings.TrimSpace(in.ProofRef)
		if sub.TransactionRef == "" || sub.ProofRef == "" {
			return nil, nil, dErrors.New(dErrors.CodeValidation, "transaction reference and proof are required")
		}
	} else {
		verifiedAt := now
		sub.Free = true
		sub.TransactionRef = models.NewFreeMarker()
		sub.ProofRef = models.NewFreeMarker()
		sub.Status = models.SubmissionVerified
		sub.VerifierID = models.SystemVerifier
		sub.VerifiedAt = &verifiedAt
		regStatus = models.RegistrationPaid
	}

	regs := make([]*models.Registration, 0, len(lines))
	for _, l := range lines {
		var teamID id.TeamID
		if l.TeamEvent {
			teamID = cart.TeamID
		}
		key := models.RegistrantKey(teamID, participantID)
		if err := s.ensureNotRegistered(ctx, l.EventID, key); err != nil {
			return nil, nil, err
		}
		sub.Events = append(sub.Events, models.SubmissionEvent{
			EventID: l.EventID, Title: l.Title, RosterIDs: l.RosterIDs, Fee: l.Fee,
		})
		regs = append(regs, &models.Registration{
			ID:             id.NewRegistrationID(),
			EventID:        l.EventID,
			RegistrantKey:  key,
			TeamID:         teamID,
			RosterIDs:      l.RosterIDs,
			Status:         regStatus,
			SubmissionID:   sub.ID,
			AmountExpected: l.Fee,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return sub, regs, nil
}

func (s *Service) loadCart(ctx context.Context, participantID id.ParticipantID) (*cartmodels.Cart, error) {
	cart, err := s.carts.Get(ctx, participantID, requestcontext.Now(ctx))
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeCartEmpty, "cart is empty")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load cart")
	case cart.IsEmpty():
		return nil, dErrors.New(dErrors.CodeCartEmpty, "cart is empty")
	}
	return cart, nil
}

// price snapshots the live catalog. Events missing from the catalog are
// unavailable.
func (s *Service) price(ctx context.Context, cart *cartmodels.Cart) ([]Line, error) {
	lines := make([]Line, 0, len(cart.Items))
	for _, it := range cart.Items {
		line := Line{EventID: it.EventID, TeamEvent: it.TeamEvent, RosterIDs: it.RosterIDs}
		event, err := s.catalog.Get(ctx, it.EventID)
		switch {
		case err == nil:
			line.Title = event.Title
			line.Fee = event.Fee
			line.Available = event.Available()
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load event")
		}
		lines = append(lines, line)
	}
	return lines, nil
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

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	args := append([]any{
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}
