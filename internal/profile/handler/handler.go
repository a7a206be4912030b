package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/profile/models"
	"regdesk/internal/profile/service"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/email"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

// Service defines the profile operations used by the handler.
type Service interface {
	CompleteProfile(ctx context.Context, externalID string, in service.CompleteProfileInput) (*models.Participant, bool, error)
	Resolve(ctx context.Context, externalID string) (*models.Profile, error)
}

// Handler serves the caller's own profile.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts profile endpoints. The router must already require an identity.
func (h *Handler) Register(r chi.Router) {
	r.Get("/profile", h.HandleGet)
	r.Put("/profile", h.HandleComplete)
}

// CompleteProfileRequest is the body of PUT /profile. A blank name or email
// falls back to what the identity token carried.
type CompleteProfileRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Institution string `json:"institution"`
}

func (r *CompleteProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Name) > models.MaxNameLength || len(r.Email) > models.MaxEmailLength || len(r.Institution) > models.MaxInstitutionLength {
		return dErrors.New(dErrors.CodeValidation, "profile field too long")
	}
	if strings.TrimSpace(r.Institution) == "" {
		return dErrors.New(dErrors.CodeValidation, "institution is required")
	}
	return nil
}

func (r *CompleteProfileRequest) fillFrom(hint requestcontext.IdentityHint) {
	if strings.TrimSpace(r.Email) == "" {
		r.Email = hint.Email
	}
	if strings.TrimSpace(r.Name) == "" {
		r.Name = hint.Name
	}
	if strings.TrimSpace(r.Name) == "" {
		r.Name = email.DisplayName(r.Email)
	}
}

// ProfileResponse is the JSON shape of a participant profile.
type ProfileResponse struct {
	ID               id.ParticipantID           `json:"id"`
	Name             string                     `json:"name"`
	Email            string                     `json:"email"`
	Institution      string                     `json:"institution"`
	Roles            []string                   `json:"roles"`
	Teams            map[id.TrackType]id.TeamID `json:"teams"`
	RegisteredEvents []id.EventID               `json:"registered_events"`
	PaidEvents       []id.EventID               `json:"paid_events"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

func toResponse(p *models.Participant, teams map[id.TrackType]id.TeamID) ProfileResponse {
	if teams == nil {
		teams = map[id.TrackType]id.TeamID{}
	}
	return ProfileResponse{
		ID:               p.ID,
		Name:             p.Name,
		Email:            p.Email,
		Institution:      p.Institution,
		Roles:            nonNil(p.Roles),
		Teams:            teams,
		RegisteredEvents: nonNil(p.RegisteredEvents),
		PaidEvents:       nonNil(p.PaidEvents),
		UpdatedAt:        p.UpdatedAt,
	}
}

// HandleGet handles GET /profile.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile, err := h.service.Resolve(ctx, requestcontext.ExternalID(ctx))
	if err != nil {
		h.logFailure(ctx, "failed to resolve profile", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(profile.Participant, profile.Teams))
}

// HandleComplete handles PUT /profile.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CompleteProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req.fillFrom(requestcontext.Hint(ctx))
	p, created, err := h.service.CompleteProfile(ctx, requestcontext.ExternalID(ctx), service.CompleteProfileInput{
		Name:        req.Name,
		Email:       req.Email,
		Institution: req.Institution,
	})
	if err != nil {
		h.logFailure(ctx, "failed to complete profile", err)
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toResponse(p, nil))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
