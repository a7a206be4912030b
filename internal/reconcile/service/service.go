package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"regdesk/internal/notify"
	"regdesk/internal/payment/models"
	paymentstore "regdesk/internal/payment/store"
	profilemodels "regdesk/internal/profile/models"
	"regdesk/internal/reconcile/matcher"
	"regdesk/internal/reconcile/metrics"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/platform/tx"
	"regdesk/pkg/requestcontext"
)

type Submissions interface {
	FindByID(ctx context.Context, submissionID id.SubmissionID) (*models.Submission, error)
	Transition(ctx context.Context, submissionID id.SubmissionID, from models.SubmissionStatus, update func(*models.Submission)) (*models.Submission, error)
	List(ctx context.Context, filter paymentstore.ListFilter) ([]*models.Submission, int, error)
	CountByStatus(ctx context.Context) (map[models.SubmissionStatus]int, error)
}

type Registrations interface {
	matcher.DirectLookup
	matcher.FallbackLookup
	ListBySubmission(ctx context.Context, submissionID id.SubmissionID) ([]*models.Registration, error)
	Update(ctx context.Context, r *models.Registration) error
}

// Catalog must count each (event, submission) pair at most once.
type Catalog interface {
	IncrementRegistered(ctx context.Context, eventID id.EventID, submissionID id.SubmissionID) (bool, error)
}

// Profiles returns domain errors.
type Profiles interface {
	Get(ctx context.Context, participantID id.ParticipantID) (*profilemodels.Participant, error)
	AddEvents(ctx context.Context, participantID id.ParticipantID, registered, paid []id.EventID) error
}

type ProofLinker interface {
	URL(ctx context.Context, ref string) (string, error)
}

type Action string

const (
	ActionVerify Action = "verify"
	ActionReject Action = "reject"
)

func (a Action) target() models.SubmissionStatus {
	if a == ActionReject {
		return models.SubmissionRejected
	}
	return models.SubmissionVerified
}

// Service applies reviewer decisions. Callers are responsible for checking
// that the verifier may review payments.
type Service struct {
	submissions   Submissions
	registrations Registrations
	catalog       Catalog
	profiles      Profiles
	tx            tx.Runner
	matchers      matcher.Chain
	notifier      notify.Sink
	proofs        ProofLinker
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

func WithNotifier(sink notify.Sink) Option {
	return func(s *Service) {
		s.notifier = sink
	}
}

func WithProofLinker(l ProofLinker) Option {
	return func(s *Service) {
		s.proofs = l
	}
}

// WithMatchers replaces the default direct-link then fallback chain.
func WithMatchers(ms ...matcher.Matcher) Option {
	return func(s *Service) {
		s.matchers = ms
	}
}

func New(submissions Submissions, registrations Registrations, catalog Catalog, profiles Profiles, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		submissions:   submissions,
		registrations: registrations,
		catalog:       catalog,
		profiles:      profiles,
		tx:            runner,
		matchers:      matcher.Chain{matcher.NewDirectLink(registrations), matcher.NewFallback(registrations, submissions)},
		tracer:        otel.Tracer("regdesk/reconcile"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// LineOutcome reports what verification did with one submission line.
type LineOutcome struct {
	EventID        id.EventID
	Title          string
	Amount         int64
	MatchedBy      string
	RegistrationID id.RegistrationID
	Unmatched      bool
}

type Decision struct {
	Submission *models.Submission
	Lines      []LineOutcome
	// Replayed is set when a verified submission was verified again.
	Replayed bool
}

// Decide verifies or rejects a submission. Everything runs in one
// transaction and the status transition is written last, gated on the status
// read at the start, so a failed line leaves the submission where it was.
func (s *Service) Decide(ctx context.Context, submissionID id.SubmissionID, action Action, reason, verifierID string) (*Decision, error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.decide", trace.WithAttributes(
		attribute.String("submission_id", submissionID.String()),
		attribute.String("action", string(action)),
	))
	defer span.End()

	d, err := s.decide(ctx, submissionID, action, strings.TrimSpace(reason), strings.TrimSpace(verifierID))
	if err != nil {
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		return nil, err
	}
	return d, nil
}

func (s *Service) decide(ctx context.Context, submissionID id.SubmissionID, action Action, reason, verifierID string) (*Decision, error) {
	switch {
	case action != ActionVerify && action != ActionReject:
		return nil, dErrors.New(dErrors.CodeValidation, "action must be verify or reject")
	case action == ActionReject && reason == "":
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	case verifierID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "verifier is required")
	}

	var decision *Decision
	err := s.tx.RunInTx(tx.WithShardKey(ctx, submissionID.String()), func(ctx context.Context) error {
		sub, err := s.submissions.FindByID(ctx, submissionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "submission not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load submission")
		}
		if !sub.Status.CanTransitionTo(action.target()) {
			return dErrors.New(dErrors.CodeInvalidTransition, "submission is already "+string(sub.Status))
		}
		if action == ActionVerify {
			decision, err = s.verify(ctx, sub, verifierID)
		} else {
			decision, err = s.reject(ctx, sub, reason, verifierID)
		}
		return err
	})
	if err != nil {
		level := slog.LevelWarn
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "reconciliation failed",
			"request_id", requestcontext.RequestID(ctx),
			"submission_id", submissionID.String(),
			"action", string(action),
			"error", err,
		)
		return nil, err
	}

	label := string(action)
	if decision.Replayed {
		label = "reverify"
	}
	if s.metrics != nil {
		s.metrics.IncrementDecision(label)
	}
	s.logAudit(ctx, "submission_"+label,
		"submission_id", submissionID.String(),
		"verifier_id", verifierID,
		"status", string(decision.Submission.Status),
	)
	if !decision.Replayed {
		s.notify(ctx, decision.Submission)
	}
	return decision, nil
}

// verify links and pays every line it can match. Lines with no registration
// are logged and skipped. Replays rewrite the same registration state and the
// counter claim keeps the event count from moving twice.
func (s *Service) verify(ctx context.Context, sub *models.Submission, verifierID string) (*Decision, error) {
	now := requestcontext.Now(ctx)
	fees := make([]int64, len(sub.Events))
	for i, e := range sub.Events {
		fees[i] = e.Fee
	}
	amounts := Allocate(sub.TotalAmount, fees)

	lines := make([]LineOutcome, 0, len(sub.Events))
	for i, line := range sub.Events {
		out := LineOutcome{EventID: line.EventID, Title: line.Title, Amount: amounts[i]}
		reg, matchedBy, err := s.matchers.Match(ctx, sub, line)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to match registration")
		}
		if reg == nil {
			out.Unmatched = true
			lines = append(lines, out)
			if s.metrics != nil {
				s.metrics.IncrementUnmatched()
			}
			s.logger.WarnContext(ctx, "no registration matched submission line",
				"request_id", requestcontext.RequestID(ctx),
				"submission_id", sub.ID.String(),
				"event_id", line.EventID.String(),
				"matchers", s.matchers.Names(),
			)
			continue
		}

		amount := amounts[i]
		reg.Status = models.RegistrationManualVerified
		reg.SubmissionID = sub.ID
		reg.AmountPaid = &amount
		reg.UpdatedAt = now
		if err := s.registrations.Update(ctx, reg); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration")
		}
		if _, err := s.catalog.IncrementRegistered(ctx, line.EventID, sub.ID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update event counter")
		}
		if s.metrics != nil {
			s.metrics.IncrementMatcherHit(matchedBy)
		}
		out.MatchedBy = matchedBy
		out.RegistrationID = reg.ID
		lines = append(lines, out)
	}

	eventIDs := sub.EventIDs()
	if err := s.profiles.AddEvents(ctx, sub.ParticipantID, eventIDs, eventIDs); err != nil {
		return nil, err
	}

	replay := sub.Status == models.SubmissionVerified
	updated, err := s.submissions.Transition(ctx, sub.ID, sub.Status, func(next *models.Submission) {
		next.Status = models.SubmissionVerified
		next.UpdatedAt = now
		if !replay {
			next.VerifierID = verifierID
			next.VerifiedAt = &now
		}
	})
	if err != nil {
		return nil, transitionErr(err)
	}
	return &Decision{Submission: updated, Lines: lines, Replayed: replay}, nil
}

// reject marks every registration linked to the submission rejected. Paid
// sets and counters are left alone.
func (s *Service) reject(ctx context.Context, sub *models.Submission, reason, verifierID string) (*Decision, error) {
	now := requestcontext.Now(ctx)
	regs, err := s.registrations.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registrations")
	}
	byEvent := make(map[id.EventID]*models.Registration, len(regs))
	for _, reg := range regs {
		reg.Status = models.RegistrationRejected
		reg.UpdatedAt = now
		if err := s.registrations.Update(ctx, reg); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update registration")
		}
		byEvent[reg.EventID] = reg
	}

	lines := make([]LineOutcome, 0, len(sub.Events))
	for _, line := range sub.Events {
		out := LineOutcome{EventID: line.EventID, Title: line.Title}
		if reg, ok := byEvent[line.EventID]; ok {
			out.RegistrationID = reg.ID
			out.MatchedBy = "direct_link"
		} else {
			out.Unmatched = true
		}
		lines = append(lines, out)
	}

	updated, err := s.submissions.Transition(ctx, sub.ID, models.SubmissionPending, func(next *models.Submission) {
		next.Status = models.SubmissionRejected
		next.RejectionReason = reason
		next.VerifierID = verifierID
		next.UpdatedAt = now
	})
	if err != nil {
		return nil, transitionErr(err)
	}
	return &Decision{Submission: updated, Lines: lines}, nil
}

func transitionErr(err error) error {
	if errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.New(dErrors.CodeInvalidTransition, "submission was decided concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update submission")
}

func (s *Service) notify(ctx context.Context, sub *models.Submission) {
	if s.notifier == nil {
		return
	}
	n := notify.Notification{
		ParticipantID: sub.ParticipantID,
		SubmissionID:  sub.ID,
		Amount:        sub.TotalAmount,
		Currency:      sub.Currency,
		CreatedAt:     requestcontext.Now(ctx),
	}
	for _, e := range sub.Events {
		n.EventTitles = append(n.EventTitles, e.Title)
	}
	if sub.Status == models.SubmissionRejected {
		n.Kind = notify.KindSubmissionRejected
		n.Subject = "Payment rejected"
		n.Summary = "Your payment could not be verified: " + sub.RejectionReason
		n.Reason = sub.RejectionReason
	} else {
		n.Kind = notify.KindSubmissionVerified
		n.Subject = "Payment verified"
		n.Summary = "Your registration is confirmed for: " + strings.Join(n.EventTitles, ", ")
	}
	if p, err := s.profiles.Get(ctx, sub.ParticipantID); err == nil {
		n.Recipient = p.Email
	} else {
		s.logger.WarnContext(ctx, "notification recipient unresolved",
			"request_id", requestcontext.RequestID(ctx),
			"submission_id", sub.ID.String(),
			"error", err,
		)
	}
	s.notifier.Publish(ctx, n)
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	args := append([]any{
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}
