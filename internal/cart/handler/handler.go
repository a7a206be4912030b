package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/cart/service"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

type Service interface {
	Get(ctx context.Context, participantID id.ParticipantID) (*service.View, error)
	AddItem(ctx context.Context, participantID id.ParticipantID, in service.AddItemInput) (*service.View, error)
	RemoveItem(ctx context.Context, participantID id.ParticipantID, eventID id.EventID) (*service.View, error)
}

// Handler serves the caller's cart.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/cart", h.HandleGet)
	r.Post("/cart/items", h.HandleAdd)
	r.Delete("/cart/items/{eventID}", h.HandleRemove)
}

type AddItemRequest struct {
	EventID   string   `json:"event_id"`
	TeamID    string   `json:"team_id,omitempty"`
	RosterIDs []string `json:"roster_ids,omitempty"`

	input service.AddItemInput
}

func (r *AddItemRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	eventID, err := id.ParseEventID(r.EventID)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
	}
	r.input = service.AddItemInput{EventID: eventID}
	if r.TeamID != "" {
		teamID, err := id.ParseTeamID(r.TeamID)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		r.input.TeamID = teamID
	}
	for _, raw := range r.RosterIDs {
		pid, err := id.ParseParticipantID(raw)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "roster_ids: "+dErrors.MessageOf(err))
		}
		r.input.RosterIDs = append(r.input.RosterIDs, pid)
	}
	return nil
}

type LineResponse struct {
	EventID   id.EventID         `json:"event_id"`
	Title     string             `json:"title"`
	Fee       int64              `json:"fee"`
	TeamEvent bool               `json:"team_event"`
	RosterIDs []id.ParticipantID `json:"roster_ids"`
	Available bool               `json:"available"`
	AddedAt   time.Time          `json:"added_at"`
}

type CartResponse struct {
	TeamID    id.TeamID      `json:"team_id"`
	Items     []LineResponse `json:"items"`
	Total     int64          `json:"total"`
	ItemCount int            `json:"item_count"`
	Currency  string         `json:"currency"`
	ExpiresAt *time.Time     `json:"expires_at"`
}

type MutationResponse struct {
	Message string        `json:"message"`
	Status  string        `json:"status"`
	Cart    *CartResponse `json:"cart"`
}

func toResponse(v *service.View) *CartResponse {
	resp := &CartResponse{
		TeamID:    v.TeamID,
		Items:     make([]LineResponse, 0, len(v.Items)),
		Total:     v.Total,
		ItemCount: v.ItemCount,
		Currency:  v.Currency,
		ExpiresAt: v.ExpiresAt,
	}
	for _, l := range v.Items {
		resp.Items = append(resp.Items, LineResponse(l))
	}
	return resp
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.service.Get(ctx, requestcontext.ParticipantID(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to get cart", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(view))
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[AddItemRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	view, err := h.service.AddItem(ctx, requestcontext.ParticipantID(ctx), req.input)
	if err != nil {
		h.fail(ctx, w, "failed to add cart item", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, MutationResponse{Message: "item added to cart", Status: "added", Cart: toResponse(view)})
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid event id"))
		return
	}
	view, err := h.service.RemoveItem(ctx, requestcontext.ParticipantID(ctx), eventID)
	if err != nil {
		h.fail(ctx, w, "failed to remove cart item", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MutationResponse{Message: "item removed from cart", Status: "removed", Cart: toResponse(view)})
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
