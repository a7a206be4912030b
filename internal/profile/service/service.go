package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"regdesk/internal/profile/models"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	adminmw "regdesk/pkg/platform/middleware/admin"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/requestcontext"
)

// Store persists participants.
type Store interface {
	Save(ctx context.Context, p *models.Participant) error
	FindByID(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Participant, error)
	AddEvents(ctx context.Context, participantID id.ParticipantID, registered, paid []id.EventID) error
	GrantRole(ctx context.Context, participantID id.ParticipantID, role string) error
}

// MembershipLookup reports the teams a participant belongs to, one per track.
type MembershipLookup interface {
	MembershipsOf(ctx context.Context, participantID id.ParticipantID) (map[id.TrackType]id.TeamID, error)
}

// CompleteProfileInput carries the editable profile fields.
type CompleteProfileInput struct {
	Name        string
	Email       string
	Institution string
}

// Service resolves external identities to participants and owns their
// profile fields, roles and event sets.
type Service struct {
	store           Store
	memberships     MembershipLookup
	bootstrapAdmins []string
	logger          *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMemberships enables team references on resolved profiles and the
// institution-change guard.
func WithMemberships(lookup MembershipLookup) Option {
	return func(s *Service) {
		s.memberships = lookup
	}
}

// WithBootstrapAdmins grants the admin role to these external identities the
// first time they complete a profile. Authorization still reads the role.
func WithBootstrapAdmins(externalIDs ...string) Option {
	return func(s *Service) {
		s.bootstrapAdmins = externalIDs
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// CompleteProfile creates or updates the participant for externalID.
func (s *Service) CompleteProfile(ctx context.Context, externalID string, in CompleteProfileInput) (*models.Participant, bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, false, dErrors.New(dErrors.CodeUnauthorized, "identity required")
	}
	now := requestcontext.Now(ctx)

	existing, err := s.store.FindByExternalID(ctx, externalID)
	switch {
	case err == nil:
		updated, err := s.update(ctx, existing, in)
		return updated, false, err
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}

	p, err := models.NewParticipant(id.NewParticipantID(), externalID, in.Name, in.Email, in.Institution, now)
	if err != nil {
		return nil, false, toValidation(err)
	}
	if err := s.store.Save(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent first completion; apply as an update.
			winner, findErr := s.store.FindByExternalID(ctx, externalID)
			if findErr != nil {
				return nil, false, dErrors.Wrap(findErr, dErrors.CodeInternal, "failed to load profile")
			}
			updated, err := s.update(ctx, winner, in)
			return updated, false, err
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
	}

	if slices.Contains(s.bootstrapAdmins, externalID) {
		if err := s.GrantRole(ctx, p.ID, adminmw.RoleAdmin); err != nil {
			return nil, false, err
		}
		p.Roles = append(p.Roles, adminmw.RoleAdmin)
	}
	s.logAudit(ctx, "profile_completed", "participant_id", p.ID.String())
	return p, true, nil
}

func (s *Service) update(ctx context.Context, p *models.Participant, in CompleteProfileInput) (*models.Participant, error) {
	previousInstitution := p.Institution
	if err := p.UpdateDetails(in.Name, in.Email, in.Institution, requestcontext.Now(ctx)); err != nil {
		return nil, toValidation(err)
	}
	if !strings.EqualFold(previousInstitution, p.Institution) {
		if err := s.ensureNotOnStandardTeam(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
	}
	s.logAudit(ctx, "profile_updated", "participant_id", p.ID.String())
	return p, nil
}

// A standard-track team requires every member to share the leader's institution.
func (s *Service) ensureNotOnStandardTeam(ctx context.Context, participantID id.ParticipantID) error {
	if s.memberships == nil {
		return nil
	}
	teams, err := s.memberships.MembershipsOf(ctx, participantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load memberships")
	}
	if _, ok := teams[id.TrackStandard]; ok {
		return dErrors.New(dErrors.CodeInstitutionMismatch, "leave your standard-track team before changing institution")
	}
	return nil
}

// Resolve returns the profile for externalID, including team references.
func (s *Service) Resolve(ctx context.Context, externalID string) (*models.Profile, error) {
	p, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	profile := &models.Profile{Participant: p, Teams: map[id.TrackType]id.TeamID{}}
	if s.memberships != nil {
		teams, err := s.memberships.MembershipsOf(ctx, p.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load memberships")
		}
		profile.Teams = teams
	}
	return profile, nil
}

// ResolveParticipantID implements the participant-resolution middleware port.
func (s *Service) ResolveParticipantID(ctx context.Context, externalID string) (id.ParticipantID, bool, error) {
	if externalID == "" {
		return id.ParticipantID{}, false, nil
	}
	p, err := s.store.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.ParticipantID{}, false, nil
		}
		return id.ParticipantID{}, false, err
	}
	return p.ID, true, nil
}

// Get returns a participant by internal id.
func (s *Service) Get(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	p, err := s.store.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "participant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load participant")
	}
	return p, nil
}

// AddEvents merges event ids into the participant's registered and paid sets.
func (s *Service) AddEvents(ctx context.Context, participantID id.ParticipantID, registered, paid []id.EventID) error {
	if err := s.store.AddEvents(ctx, participantID, registered, paid); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "participant not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update participant events")
	}
	return nil
}

// HasRole implements the role-guard port.
func (s *Service) HasRole(ctx context.Context, participantID id.ParticipantID, role string) (bool, error) {
	p, err := s.store.FindByID(ctx, participantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.HasRole(role), nil
}

// GrantRole adds a capability to a participant.
func (s *Service) GrantRole(ctx context.Context, participantID id.ParticipantID, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return dErrors.New(dErrors.CodeValidation, "role is required")
	}
	if err := s.store.GrantRole(ctx, participantID, role); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "participant not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant role")
	}
	s.logAudit(ctx, "role_granted", "participant_id", participantID.String(), "role", role)
	return nil
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	args := append([]any{
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}

func toValidation(err error) error {
	if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	return err
}
