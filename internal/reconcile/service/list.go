package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"regdesk/internal/payment/models"
	paymentstore "regdesk/internal/payment/store"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/requestcontext"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type ListInput struct {
	Status   models.SubmissionStatus
	Page     int
	PageSize int
}

type Item struct {
	Submission *models.Submission
	ProofURL   string
}

type Page struct {
	Items    []Item
	Total    int
	Page     int
	PageSize int
	Counts   map[models.SubmissionStatus]int
}

// List returns one page of submissions, newest first, with per-status counts
// over all submissions.
func (s *Service) List(ctx context.Context, in ListInput) (*Page, error) {
	if in.Status != "" && !in.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown submission status")
	}
	page := max(in.Page, 1)
	size := in.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	size = min(size, maxPageSize)

	var (
		subs   []*models.Submission
		total  int
		counts map[models.SubmissionStatus]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		subs, total, err = s.submissions.List(gctx, paymentstore.ListFilter{
			Status: in.Status,
			Offset: (page - 1) * size,
			Limit:  size,
		})
		return err
	})
	g.Go(func() error {
		var err error
		counts, err = s.submissions.CountByStatus(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list submissions")
	}

	items := make([]Item, 0, len(subs))
	for _, sub := range subs {
		items = append(items, Item{Submission: sub, ProofURL: s.proofURL(ctx, sub)})
	}
	return &Page{Items: items, Total: total, Page: page, PageSize: size, Counts: counts}, nil
}

func (s *Service) proofURL(ctx context.Context, sub *models.Submission) string {
	if s.proofs == nil || sub.Free {
		return ""
	}
	url, err := s.proofs.URL(ctx, sub.ProofRef)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to presign proof",
			"request_id", requestcontext.RequestID(ctx),
			"submission_id", sub.ID.String(),
			"error", err,
		)
		return ""
	}
	return url
}
