package service

import (
	"context"
	"errors"
	"log/slog"

	profilemodels "regdesk/internal/profile/models"
	"regdesk/internal/team/metrics"
	"regdesk/internal/team/models"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/requestcontext"
)

// Store persists teams. Execute and Delete hold the team lock across validate
// and the write; a membership collision surfaces as sentinel.ErrConflict.
type Store interface {
	Create(ctx context.Context, t *models.Team) error
	FindByID(ctx context.Context, teamID id.TeamID) (*models.Team, error)
	FindByMember(ctx context.Context, participantID id.ParticipantID, track id.TrackType) (*models.Team, error)
	MembershipsOf(ctx context.Context, participantID id.ParticipantID) (map[id.TrackType]id.TeamID, error)
	Execute(ctx context.Context, teamID id.TeamID, validate func(*models.Team) error, mutate func(*models.Team)) (*models.Team, error)
	Delete(ctx context.Context, teamID id.TeamID, validate func(*models.Team) error) (*models.Team, error)
}

// ProfileReader loads participants for institution checks.
type ProfileReader interface {
	Get(ctx context.Context, participantID id.ParticipantID) (*profilemodels.Participant, error)
}

const (
	defaultMaxStandard = 4
	defaultMaxOpen     = 6
)

// Service is the team registry.
type Service struct {
	teams       Store
	profiles    ProfileReader
	maxStandard int
	maxOpen     int
	logger      *slog.Logger
	metrics     *metrics.Metrics
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

// WithSizeLimits sets the member cap for each track.
func WithSizeLimits(standard, open int) Option {
	return func(s *Service) {
		if standard > 0 {
			s.maxStandard = standard
		}
		if open > 0 {
			s.maxOpen = open
		}
	}
}

func New(teams Store, profiles ProfileReader, opts ...Option) *Service {
	s := &Service{
		teams:       teams,
		profiles:    profiles,
		maxStandard: defaultMaxStandard,
		maxOpen:     defaultMaxOpen,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Service) maxMembers(track id.TrackType) int {
	if track == id.TrackOpen {
		return s.maxOpen
	}
	return s.maxStandard
}

// Get returns a team by id.
func (s *Service) Get(ctx context.Context, teamID id.TeamID) (*models.Team, error) {
	t, err := s.teams.FindByID(ctx, teamID)
	if err != nil {
		return nil, wrapTeamErr(err, "load team")
	}
	return t, nil
}

// TeamOf returns the participant's team on track.
func (s *Service) TeamOf(ctx context.Context, participantID id.ParticipantID, track id.TrackType) (*models.Team, error) {
	t, err := s.teams.FindByMember(ctx, participantID, track)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no team on this track")
		}
		return nil, wrapTeamErr(err, "load team")
	}
	return t, nil
}

// MembershipsOf lists the participant's team per track.
func (s *Service) MembershipsOf(ctx context.Context, participantID id.ParticipantID) (map[id.TrackType]id.TeamID, error) {
	return s.teams.MembershipsOf(ctx, participantID)
}

// CreateTeam makes leader the sole member of a new team on track.
func (s *Service) CreateTeam(ctx context.Context, leader id.ParticipantID, name string, track id.TrackType) (*models.Team, error) {
	if err := s.ensureFree(ctx, leader, track, dErrors.CodeAlreadyOnTeam); err != nil {
		return nil, err
	}
	team, err := models.NewTeam(id.NewTeamID(), name, leader, track, s.maxMembers(track), requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, wrapTeamErr(err, "create team")
	}
	if s.metrics != nil {
		s.metrics.IncrementTeamsCreated()
	}
	s.logAudit(ctx, "team_created",
		"team_id", team.ID.String(),
		"leader_id", leader.String(),
		"track", string(track),
	)
	return team, nil
}

// Invite adds target to the pending invitations of the leader's team.
func (s *Service) Invite(ctx context.Context, leader, target id.ParticipantID, track id.TrackType) (*models.Team, error) {
	if leader == target {
		return nil, dErrors.New(dErrors.CodeValidation, "you cannot invite yourself")
	}
	team, err := s.ledTeam(ctx, leader, track)
	if err != nil {
		return nil, err
	}
	if _, err := s.profiles.Get(ctx, target); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, target, track, dErrors.CodeTargetOnTeam); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	updated, err := s.teams.Execute(ctx, team.ID,
		func(t *models.Team) error {
			switch {
			case !t.IsLeader(leader):
				return dErrors.New(dErrors.CodeNotLeader, "only the team leader can invite")
			case t.Locked:
				return dErrors.New(dErrors.CodeTeamLocked, "team is locked")
			case t.HasMember(target):
				return dErrors.New(dErrors.CodeTargetOnTeam, "participant is already on the team")
			case t.HasInvitation(target):
				return dErrors.New(dErrors.CodeAlreadyInvited, "participant is already invited")
			}
			return nil
		},
		func(t *models.Team) {
			t.AddInvitation(target, now)
		},
	)
	if err != nil {
		return nil, wrapTeamErr(err, "invite")
	}
	s.transition(ctx, "invited", updated, target)
	return updated, nil
}

// RespondToInvitation consumes the pending invitation whatever the answer,
// then on accept admits the participant after re-checking the team.
func (s *Service) RespondToInvitation(ctx context.Context, participantID id.ParticipantID, teamID id.TeamID, accept bool) (*models.Team, error) {
	now := requestcontext.Now(ctx)
	team, err := s.teams.Execute(ctx, teamID,
		func(t *models.Team) error {
			if !t.HasInvitation(participantID) {
				return dErrors.New(dErrors.CodeNotFound, "no pending invitation from this team")
			}
			return nil
		},
		func(t *models.Team) {
			t.ConsumeInvitation(participantID, now)
		},
	)
	if err != nil {
		return nil, wrapTeamErr(err, "respond to invitation")
	}
	if !accept {
		s.transition(ctx, "invitation_declined", team, participantID)
		return team, nil
	}
	return s.admit(ctx, team, participantID, "invitation_accepted")
}

// RequestToJoin files a join request with teamID on track.
func (s *Service) RequestToJoin(ctx context.Context, participantID id.ParticipantID, teamID id.TeamID, track id.TrackType) (*models.Team, error) {
	team, err := s.Get(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if team.Track != track {
		return nil, dErrors.New(dErrors.CodeValidation, "team is on a different track")
	}
	if err := s.ensureFree(ctx, participantID, track, dErrors.CodeAlreadyOnTeam); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	updated, err := s.teams.Execute(ctx, teamID,
		func(t *models.Team) error {
			switch {
			case t.Locked:
				return dErrors.New(dErrors.CodeTeamLocked, "team is locked")
			case t.HasMember(participantID):
				return dErrors.New(dErrors.CodeAlreadyOnTeam, "you are already on this team")
			case t.HasJoinRequest(participantID):
				return dErrors.New(dErrors.CodeAlreadyRequested, "join request already pending")
			}
			return nil
		},
		func(t *models.Team) {
			t.AddJoinRequest(participantID, now)
		},
	)
	if err != nil {
		return nil, wrapTeamErr(err, "request to join")
	}
	s.transition(ctx, "join_requested", updated, participantID)
	return updated, nil
}

// RespondToJoinRequest lets the leader accept or decline target's request.
// The request is consumed before acceptance is re-validated.
func (s *Service) RespondToJoinRequest(ctx context.Context, leader, target id.ParticipantID, accept bool, track id.TrackType) (*models.Team, error) {
	team, err := s.ledTeam(ctx, leader, track)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	team, err = s.teams.Execute(ctx, team.ID,
		func(t *models.Team) error {
			switch {
			case !t.IsLeader(leader):
				return dErrors.New(dErrors.CodeNotLeader, "only the team leader can answer join requests")
			case !t.HasJoinRequest(target):
				return dErrors.New(dErrors.CodeNotFound, "no pending join request from this participant")
			}
			return nil
		},
		func(t *models.Team) {
			t.ConsumeJoinRequest(target, now)
		},
	)
	if err != nil {
		return nil, wrapTeamErr(err, "respond to join request")
	}
	if !accept {
		s.transition(ctx, "join_declined", team, target)
		return team, nil
	}
	return s.admit(ctx, team, target, "join_accepted")
}

// admit re-validates lock, capacity, membership and institution at the
// moment of acceptance and adds the participant.
func (s *Service) admit(ctx context.Context, team *models.Team, participantID id.ParticipantID, transition string) (*models.Team, error) {
	if team.Track.RequiresSameInstitution() {
		if err := s.ensureSameInstitution(ctx, team.LeaderID, participantID); err != nil {
			return nil, err
		}
	}
	if err := s.ensureFree(ctx, participantID, team.Track, dErrors.CodeAlreadyOnTeam); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	updated, err := s.teams.Execute(ctx, team.ID,
		func(t *models.Team) error {
			switch {
			case t.Locked:
				return dErrors.New(dErrors.CodeTeamLocked, "team is locked")
			case t.HasMember(participantID):
				return dErrors.New(dErrors.CodeAlreadyOnTeam, "already on this team")
			case t.IsFull():
				return dErrors.New(dErrors.CodeTeamFull, "team is full")
			}
			return nil
		},
		func(t *models.Team) {
			t.AddMember(participantID, now)
		},
	)
	if err != nil {
		return nil, wrapTeamErr(err, "add member")
	}
	s.transition(ctx, transition, updated, participantID)
	return updated, nil
}

// Leave removes the participant from their team on track. A leader leaving
// disbands the team; the returned flag reports that case.
func (s *Service) Leave(ctx context.Context, participantID id.ParticipantID, track id.TrackType) (*models.Team, bool, error) {
	team, err := s.TeamOf(ctx, participantID, track)
	if err != nil {
		return nil, false, err
	}

	if team.IsLeader(participantID) {
		disbanded, err := s.teams.Delete(ctx, team.ID, func(t *models.Team) error {
			if t.Locked {
				return dErrors.New(dErrors.CodeTeamLocked, "unlock the team before disbanding it")
			}
			return nil
		})
		if err != nil {
			return nil, false, wrapTeamErr(err, "disband team")
		}
		s.transition(ctx, "disbanded", disbanded, participantID)
		return disbanded, true, nil
	}

	now := requestcontext.Now(ctx)
	updated, err := s.teams.Execute(ctx, team.ID,
		func(t *models.Team) error {
			switch {
			case t.Locked:
				return dErrors.New(dErrors.CodeTeamLocked, "team is locked")
			case !t.HasMember(participantID):
				return dErrors.New(dErrors.CodeNotFound, "no team on this track")
			}
			return nil
		},
		func(t *models.Team) {
			t.RemoveMember(participantID, now)
		},
	)
	if err != nil {
		return nil, false, wrapTeamErr(err, "leave team")
	}
	s.transition(ctx, "left", updated, participantID)
	return updated, false, nil
}

// SetLocked freezes or unfreezes the leader's roster.
func (s *Service) SetLocked(ctx context.Context, leader id.ParticipantID, track id.TrackType, locked bool) (*models.Team, error) {
	team, err := s.ledTeam(ctx, leader, track)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	updated, err := s.teams.Execute(ctx, team.ID,
		func(t *models.Team) error {
			if !t.IsLeader(leader) {
				return dErrors.New(dErrors.CodeNotLeader, "only the team leader can lock the team")
			}
			return nil
		},
		func(t *models.Team) {
			t.SetLocked(locked, now)
		},
	)
	if err != nil {
		return nil, wrapTeamErr(err, "lock team")
	}
	transition := "unlocked"
	if locked {
		transition = "locked"
	}
	s.transition(ctx, transition, updated, leader)
	return updated, nil
}

func (s *Service) ledTeam(ctx context.Context, leader id.ParticipantID, track id.TrackType) (*models.Team, error) {
	team, err := s.teams.FindByMember(ctx, leader, track)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotLeader, "you do not lead a team on this track")
		}
		return nil, wrapTeamErr(err, "load team")
	}
	if !team.IsLeader(leader) {
		return nil, dErrors.New(dErrors.CodeNotLeader, "only the team leader can do this")
	}
	return team, nil
}

// ensureFree fails with code when the participant already has a team on track.
func (s *Service) ensureFree(ctx context.Context, participantID id.ParticipantID, track id.TrackType, code dErrors.Code) error {
	_, err := s.teams.FindByMember(ctx, participantID, track)
	switch {
	case err == nil:
		if code == dErrors.CodeTargetOnTeam {
			return dErrors.New(code, "participant is already on a team for this track")
		}
		return dErrors.New(code, "already on a team for this track")
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load memberships")
	}
}

func (s *Service) ensureSameInstitution(ctx context.Context, leaderID, participantID id.ParticipantID) error {
	leader, err := s.profiles.Get(ctx, leaderID)
	if err != nil {
		return err
	}
	p, err := s.profiles.Get(ctx, participantID)
	if err != nil {
		return err
	}
	if !leader.SameInstitution(p) {
		return dErrors.New(dErrors.CodeInstitutionMismatch, "standard-track teams require members from the leader's institution")
	}
	return nil
}

func (s *Service) transition(ctx context.Context, transition string, t *models.Team, participantID id.ParticipantID) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(transition)
	}
	s.logAudit(ctx, "team_"+transition,
		"team_id", t.ID.String(),
		"participant_id", participantID.String(),
		"track", string(t.Track),
	)
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	args := append([]any{
		"event", event,
		"log_type", "audit",
		"request_id", requestcontext.RequestID(ctx),
	}, attrs...)
	s.logger.InfoContext(ctx, event, args...)
}

func wrapTeamErr(err error, action string) error {
	var domainErr *dErrors.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "team not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeAlreadyOnTeam, "already on a team for this track")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+action)
	}
}
