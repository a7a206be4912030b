package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/team/models"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

// Service defines the team registry operations used by the handler.
type Service interface {
	Get(ctx context.Context, teamID id.TeamID) (*models.Team, error)
	TeamOf(ctx context.Context, participantID id.ParticipantID, track id.TrackType) (*models.Team, error)
	CreateTeam(ctx context.Context, leader id.ParticipantID, name string, track id.TrackType) (*models.Team, error)
	Invite(ctx context.Context, leader, target id.ParticipantID, track id.TrackType) (*models.Team, error)
	RespondToInvitation(ctx context.Context, participantID id.ParticipantID, teamID id.TeamID, accept bool) (*models.Team, error)
	RequestToJoin(ctx context.Context, participantID id.ParticipantID, teamID id.TeamID, track id.TrackType) (*models.Team, error)
	RespondToJoinRequest(ctx context.Context, leader, target id.ParticipantID, accept bool, track id.TrackType) (*models.Team, error)
	Leave(ctx context.Context, participantID id.ParticipantID, track id.TrackType) (*models.Team, bool, error)
	SetLocked(ctx context.Context, leader id.ParticipantID, track id.TrackType, locked bool) (*models.Team, error)
}

// Handler serves the team registry. Routes need a resolved participant.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/teams", h.HandleCreate)
	r.Get("/teams/{teamID}", h.HandleGet)
	r.Post("/teams/{teamID}/invitations/respond", h.HandleRespondToInvitation)
	r.Post("/teams/{teamID}/join-requests", h.HandleRequestToJoin)

	r.Get("/tracks/{track}/team", h.HandleGetOwn)
	r.Post("/tracks/{track}/team/invitations", h.HandleInvite)
	r.Post("/tracks/{track}/team/join-requests/{participantID}/respond", h.HandleRespondToJoinRequest)
	r.Post("/tracks/{track}/team/leave", h.HandleLeave)
	r.Post("/tracks/{track}/team/lock", h.HandleLock)
}

type CreateTeamRequest struct {
	Name  string `json:"name"`
	Track string `json:"track"`

	track id.TrackType
}

func (r *CreateTeamRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "team name is required")
	}
	if len(r.Name) > models.MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "team name is too long")
	}
	track, err := id.ParseTrackType(r.Track)
	if err != nil {
		return err
	}
	r.track = track
	return nil
}

type InviteRequest struct {
	ParticipantID string `json:"participant_id"`

	target id.ParticipantID
}

func (r *InviteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	target, err := id.ParseParticipantID(r.ParticipantID)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	r.target = target
	return nil
}

type RespondRequest struct {
	Accept *bool `json:"accept"`
}

func (r *RespondRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Accept == nil {
		return dErrors.New(dErrors.CodeValidation, "accept is required")
	}
	return nil
}

type JoinRequest struct {
	Track string `json:"track"`

	track id.TrackType
}

func (r *JoinRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	track, err := id.ParseTrackType(r.Track)
	if err != nil {
		return err
	}
	r.track = track
	return nil
}

type LockRequest struct {
	Locked *bool `json:"locked"`
}

func (r *LockRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Locked == nil {
		return dErrors.New(dErrors.CodeValidation, "locked is required")
	}
	return nil
}

// TeamResponse is the JSON snapshot of a team.
type TeamResponse struct {
	ID           id.TeamID          `json:"id"`
	Name         string             `json:"name"`
	Slug         string             `json:"slug"`
	LeaderID     id.ParticipantID   `json:"leader_id"`
	Members      []id.ParticipantID `json:"members"`
	Track        id.TrackType       `json:"track"`
	Locked       bool               `json:"locked"`
	MaxMembers   int                `json:"max_members"`
	Invitations  []id.ParticipantID `json:"invitations"`
	JoinRequests []id.ParticipantID `json:"join_requests"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// MutationResponse wraps every team mutation.
type MutationResponse struct {
	Message string        `json:"message"`
	Status  string        `json:"status"`
	Team    *TeamResponse `json:"team"`
}

func toResponse(t *models.Team) *TeamResponse {
	if t == nil {
		return nil
	}
	return &TeamResponse{
		ID:           t.ID,
		Name:         t.Name,
		Slug:         t.Slug,
		LeaderID:     t.LeaderID,
		Members:      nonNil(t.Members),
		Track:        t.Track,
		Locked:       t.Locked,
		MaxMembers:   t.MaxMembers,
		Invitations:  nonNil(t.Invitations),
		JoinRequests: nonNil(t.JoinRequests),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateTeamRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	team, err := h.service.CreateTeam(ctx, requestcontext.ParticipantID(ctx), req.Name, req.track)
	if err != nil {
		h.fail(ctx, w, "failed to create team", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, MutationResponse{Message: "team created", Status: "created", Team: toResponse(team)})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID, ok := h.teamID(w, r)
	if !ok {
		return
	}
	team, err := h.service.Get(ctx, teamID)
	if err != nil {
		h.fail(ctx, w, "failed to get team", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(team))
}

func (h *Handler) HandleGetOwn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, ok := h.track(w, r)
	if !ok {
		return
	}
	team, err := h.service.TeamOf(ctx, requestcontext.ParticipantID(ctx), track)
	if err != nil {
		h.fail(ctx, w, "failed to get team", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(team))
}

func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, ok := h.track(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[InviteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	team, err := h.service.Invite(ctx, requestcontext.ParticipantID(ctx), req.target, track)
	if err != nil {
		h.fail(ctx, w, "failed to invite", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "invitation sent", Status: "invited", Team: toResponse(team)})
}

func (h *Handler) HandleRespondToInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID, ok := h.teamID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RespondRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	team, err := h.service.RespondToInvitation(ctx, requestcontext.ParticipantID(ctx), teamID, *req.Accept)
	if err != nil {
		h.fail(ctx, w, "failed to respond to invitation", err)
		return
	}
	if *req.Accept {
		httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "you joined the team", Status: "joined", Team: toResponse(team)})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "invitation declined", Status: "declined", Team: toResponse(team)})
}

func (h *Handler) HandleRequestToJoin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	teamID, ok := h.teamID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[JoinRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	team, err := h.service.RequestToJoin(ctx, requestcontext.ParticipantID(ctx), teamID, req.track)
	if err != nil {
		h.fail(ctx, w, "failed to request to join", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "join request sent", Status: "requested", Team: toResponse(team)})
}

func (h *Handler) HandleRespondToJoinRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, ok := h.track(w, r)
	if !ok {
		return
	}
	target, err := id.ParseParticipantID(chi.URLParam(r, "participantID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid participant id"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[RespondRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	team, err := h.service.RespondToJoinRequest(ctx, requestcontext.ParticipantID(ctx), target, *req.Accept, track)
	if err != nil {
		h.fail(ctx, w, "failed to respond to join request", err)
		return
	}
	if *req.Accept {
		httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "member added", Status: "joined", Team: toResponse(team)})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "join request declined", Status: "declined", Team: toResponse(team)})
}

func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, ok := h.track(w, r)
	if !ok {
		return
	}
	team, disbanded, err := h.service.Leave(ctx, requestcontext.ParticipantID(ctx), track)
	if err != nil {
		h.fail(ctx, w, "failed to leave team", err)
		return
	}
	if disbanded {
		httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "team disbanded", Status: "disbanded", Team: toResponse(team)})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "you left the team", Status: "left", Team: toResponse(team)})
}

func (h *Handler) HandleLock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, ok := h.track(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[LockRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	team, err := h.service.SetLocked(ctx, requestcontext.ParticipantID(ctx), track, *req.Locked)
	if err != nil {
		h.fail(ctx, w, "failed to lock team", err)
		return
	}
	status, message := "unlocked", "team unlocked"
	if *req.Locked {
		status, message = "locked", "team locked"
	}
	httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: message, Status: status, Team: toResponse(team)})
}

func (h *Handler) teamID(w http.ResponseWriter, r *http.Request) (id.TeamID, bool) {
	teamID, err := id.ParseTeamID(chi.URLParam(r, "teamID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid team id"))
		return id.TeamID{}, false
	}
	return teamID, true
}

func (h *Handler) track(w http.ResponseWriter, r *http.Request) (id.TrackType, bool) {
	track, err := id.ParseTrackType(chi.URLParam(r, "track"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return track, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"participant_id", requestcontext.ParticipantID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
