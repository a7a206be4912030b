package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/checkout/service"
	"regdesk/internal/payment/models"
	"regdesk/internal/platform/config"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the checkout operations used by the handler.
type Service interface {
	Summary(ctx context.Context, participantID id.ParticipantID) (*service.Summary, error)
	Submit(ctx context.Context, participantID id.ParticipantID, in service.SubmitInput) (*service.Result, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/checkout", h.HandleSummary)
	r.Post("/checkout", h.HandleSubmit)
}

// SubmitRequest carries the payment proof. Both fields may be empty for a
// free cart.
type SubmitRequest struct {
	TransactionRef string `json:"transaction_ref"`
	ProofRef       string `json:"proof_ref"`
}

func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.TransactionRef) > 128 || len(r.ProofRef) > 512 {
		return dErrors.New(dErrors.CodeValidation, "payment reference is too long")
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
}

type SummaryResponse struct {
	Items         []LineResponse       `json:"items"`
	Total         int64                `json:"total"`
	Currency      string               `json:"currency"`
	ItemCount     int                  `json:"item_count"`
	PaymentTarget config.PaymentTarget `json:"payment_target"`
}

type SubmitResponse struct {
	Message            string                    `json:"message"`
	Status             models.SubmissionStatus   `json:"status"`
	SubmissionID       id.SubmissionID           `json:"submission_id"`
	RegistrationStatus models.RegistrationStatus `json:"registration_status"`
	Total              int64                     `json:"total"`
	Currency           string                    `json:"currency"`
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := h.service.Summary(ctx, requestcontext.ParticipantID(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to build checkout summary", err)
		return
	}
	resp := SummaryResponse{
		Items:         make([]LineResponse, 0, len(sum.Items)),
		Total:         sum.Total,
		Currency:      sum.Currency,
		ItemCount:     sum.ItemCount,
		PaymentTarget: sum.PaymentTarget,
	}
	for _, l := range sum.Items {
		resp.Items = append(resp.Items, LineResponse(l))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.Submit(ctx, requestcontext.ParticipantID(ctx), service.SubmitInput{
		TransactionRef: req.TransactionRef,
		ProofRef:       req.ProofRef,
	})
	if err != nil {
		h.fail(ctx, w, "failed to submit payment", err)
		return
	}
	message := "payment submitted for verification"
	if res.Submission.Free {
		message = "registration confirmed"
	}
	httputil.WriteJSON(w, http.StatusCreated, SubmitResponse{
		Message:            message,
		Status:             res.Submission.Status,
		SubmissionID:       res.Submission.ID,
		RegistrationStatus: res.RegistrationStatus,
		Total:              res.Submission.TotalAmount,
		Currency:           res.Submission.Currency,
	})
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
