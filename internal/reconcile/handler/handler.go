package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/payment/models"
	"regdesk/internal/reconcile/service"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

// Service defines the reviewer operations used by the handler.
type Service interface {
	List(ctx context.Context, in service.ListInput) (*service.Page, error)
	Decide(ctx context.Context, submissionID id.SubmissionID, action service.Action, reason, verifierID string) (*service.Decision, error)
}

// Handler serves the reviewer queue. Routes must be mounted behind the
// admin role guard.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/submissions", h.HandleList)
	r.Post("/admin/submissions/{submissionID}/verify", h.HandleVerify)
	r.Post("/admin/submissions/{submissionID}/reject", h.HandleReject)
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	switch {
	case r.Reason == "":
		return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	case len(r.Reason) > 500:
		return dErrors.New(dErrors.CodeValidation, "rejection reason is too long")
	}
	return nil
}

type SubmissionResponse struct {
	ID              id.SubmissionID          `json:"id"`
	ParticipantID   id.ParticipantID         `json:"participant_id"`
	TeamID          *id.TeamID               `json:"team_id,omitempty"`
	TransactionRef  string                   `json:"transaction_ref"`
	ProofURL        string                   `json:"proof_url,omitempty"`
	Free            bool                     `json:"free"`
	Total           int64                    `json:"total"`
	Currency        string                   `json:"currency"`
	Events          []models.SubmissionEvent `json:"events"`
	Status          models.SubmissionStatus  `json:"status"`
	VerifierID      string                   `json:"verifier_id,omitempty"`
	VerifiedAt      *time.Time               `json:"verified_at,omitempty"`
	RejectionReason string                   `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

type ListResponse struct {
	Submissions []SubmissionResponse            `json:"submissions"`
	Total       int                             `json:"total"`
	Page        int                             `json:"page"`
	PageSize    int                             `json:"page_size"`
	Counts      map[models.SubmissionStatus]int `json:"counts"`
}

type LineResponse struct {
	EventID        id.EventID         `json:"event_id"`
	Title          string             `json:"title"`
	Amount         int64              `json:"amount"`
	MatchedBy      string             `json:"matched_by,omitempty"`
	RegistrationID *id.RegistrationID `json:"registration_id,omitempty"`
	Unmatched      bool               `json:"unmatched"`
}

type DecisionResponse struct {
	Message    string             `json:"message"`
	Submission SubmissionResponse `json:"submission"`
	Lines      []LineResponse     `json:"lines"`
	Replayed   bool               `json:"replayed"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	in := service.ListInput{Status: models.SubmissionStatus(q.Get("status"))}
	var err error
	if in.Page, err = intParam(q.Get("page")); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid page"))
		return
	}
	if in.PageSize, err = intParam(q.Get("page_size")); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid page size"))
		return
	}

	page, err := h.service.List(ctx, in)
	if err != nil {
		h.fail(ctx, w, "failed to list submissions", err)
		return
	}
	resp := ListResponse{
		Submissions: make([]SubmissionResponse, 0, len(page.Items)),
		Total:       page.Total,
		Page:        page.Page,
		PageSize:    page.PageSize,
		Counts:      page.Counts,
	}
	for _, item := range page.Items {
		resp.Submissions = append(resp.Submissions, toSubmissionResponse(item.Submission, item.ProofURL))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	h.decide(ctx, w, submissionID, service.ActionVerify, "")
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	submissionID, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.decide(ctx, w, submissionID, service.ActionReject, req.Reason)
}

func (h *Handler) decide(ctx context.Context, w http.ResponseWriter, submissionID id.SubmissionID, action service.Action, reason string) {
	d, err := h.service.Decide(ctx, submissionID, action, reason, requestcontext.ParticipantID(ctx).String())
	if err != nil {
		h.fail(ctx, w, "failed to "+string(action)+" submission", err)
		return
	}
	message := "submission verified"
	switch {
	case d.Replayed:
		message = "submission re-verified"
	case action == service.ActionReject:
		message = "submission rejected"
	}
	resp := DecisionResponse{
		Message:    message,
		Submission: toSubmissionResponse(d.Submission, ""),
		Lines:      make([]LineResponse, 0, len(d.Lines)),
		Replayed:   d.Replayed,
	}
	for _, l := range d.Lines {
		line := LineResponse{
			EventID:   l.EventID,
			Title:     l.Title,
			Amount:    l.Amount,
			MatchedBy: l.MatchedBy,
			Unmatched: l.Unmatched,
		}
		if !l.RegistrationID.IsNil() {
			regID := l.RegistrationID
			line.RegistrationID = &regID
		}
		resp.Lines = append(resp.Lines, line)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) submissionID(w http.ResponseWriter, r *http.Request) (id.SubmissionID, bool) {
	submissionID, err := id.ParseSubmissionID(chi.URLParam(r, "submissionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid submission id"))
		return id.SubmissionID{}, false
	}
	return submissionID, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func toSubmissionResponse(sub *models.Submission, proofURL string) SubmissionResponse {
	resp := SubmissionResponse{
		ID:              sub.ID,
		ParticipantID:   sub.ParticipantID,
		TransactionRef:  sub.TransactionRef,
		ProofURL:        proofURL,
		Free:            sub.Free,
		Total:           sub.TotalAmount,
		Currency:        sub.Currency,
		Events:          sub.Events,
		Status:          sub.Status,
		VerifierID:      sub.VerifierID,
		VerifiedAt:      sub.VerifiedAt,
		RejectionReason: sub.RejectionReason,
		CreatedAt:       sub.CreatedAt,
	}
	if !sub.TeamID.IsNil() {
		teamID := sub.TeamID
		resp.TeamID = &teamID
	}
	return resp
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"verifier_id", requestcontext.ParticipantID(ctx).String(),
		"error", err,
	)
	httputil.WriteError(w, err)
}
