// Package matcher finds the Registration a submission line pays for. The
// strategies are tried in order and the first hit wins.
package matcher

import (
	"context"
	"errors"

	"regdesk/internal/payment/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

// Matcher reports found=false when it has no candidate. Errors are
// persistence failures.
type Matcher interface {
	Name() string
	Match(ctx context.Context, sub *models.Submission, line models.SubmissionEvent) (*models.Registration, bool, error)
}

type DirectLookup interface {
	FindByEventAndSubmission(ctx context.Context, eventID id.EventID, submissionID id.SubmissionID) (*models.Registration, error)
}

// DirectLink finds the registration linked to the submission at checkout.
type DirectLink struct {
	store DirectLookup
}

func NewDirectLink(store DirectLookup) *DirectLink {
	return &DirectLink{store: store}
}

func (m *DirectLink) Name() string { return "direct_link" }

func (m *DirectLink) Match(ctx context.Context, sub *models.Submission, line models.SubmissionEvent) (*models.Registration, bool, error) {
	return found(m.store.FindByEventAndSubmission(ctx, line.EventID, sub.ID))
}

type FallbackLookup interface {
	FindActiveByEventAndTeam(ctx context.Context, eventID id.EventID, teamID id.TeamID) (*models.Registration, error)
	FindActiveByEventAndRosterMember(ctx context.Context, eventID id.EventID, participantID id.ParticipantID) (*models.Registration, error)
}

type SubmissionLookup interface {
	FindByID(ctx context.Context, submissionID id.SubmissionID) (*models.Submission, error)
}

// Fallback relinks registrations whose submission link was lost: an active
// registration for the event held by the submission's team, else one whose
// roster includes the submitter. A registration still linked to another live
// submission belongs to that submission and is never taken.
type Fallback struct {
	store       FallbackLookup
	submissions SubmissionLookup
}

func NewFallback(store FallbackLookup, submissions SubmissionLookup) *Fallback {
	return &Fallback{store: store, submissions: submissions}
}

func (m *Fallback) Name() string { return "fallback" }

func (m *Fallback) Match(ctx context.Context, sub *models.Submission, line models.SubmissionEvent) (*models.Registration, bool, error) {
	if !sub.TeamID.IsNil() {
		reg, ok, err := found(m.store.FindActiveByEventAndTeam(ctx, line.EventID, sub.TeamID))
		if err == nil && ok {
			ok, err = m.claimable(ctx, sub, reg)
		}
		if err != nil {
			return nil, false, err
		}
		if ok {
			return reg, true, nil
		}
	}
	reg, ok, err := found(m.store.FindActiveByEventAndRosterMember(ctx, line.EventID, sub.ParticipantID))
	if err == nil && ok {
		ok, err = m.claimable(ctx, sub, reg)
	}
	if err != nil || !ok {
		return nil, false, err
	}
	return reg, true, nil
}

// claimable accepts registrations that are unlinked, already linked to sub,
// or linked to a submission that is gone or rejected.
func (m *Fallback) claimable(ctx context.Context, sub *models.Submission, reg *models.Registration) (bool, error) {
	if reg.SubmissionID.IsNil() || reg.SubmissionID == sub.ID {
		return true, nil
	}
	owner, err := m.submissions.FindByID(ctx, reg.SubmissionID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return true, nil
	case err != nil:
		return false, err
	}
	return owner.Status == models.SubmissionRejected, nil
}

// Chain tries matchers in order.
type Chain []Matcher

// Match returns the registration and the name of the matcher that found it.
func (c Chain) Match(ctx context.Context, sub *models.Submission, line models.SubmissionEvent) (*models.Registration, string, error) {
	for _, m := range c {
		reg, ok, err := m.Match(ctx, sub, line)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return reg, m.Name(), nil
		}
	}
	return nil, "", nil
}

// Names lists the strategies in order, for logging.
func (c Chain) Names() []string {
	out := make([]string, len(c))
	for i, m := range c {
		out[i] = m.Name()
	}
	return out
}

func found(reg *models.Registration, err error) (*models.Registration, bool, error) {
	switch {
	case err == nil:
		return reg, true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}
