package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	catalogmodels "regdesk/internal/catalog/models"
	catalogstore "regdesk/internal/catalog/store"
	"regdesk/internal/notify"
	"regdesk/internal/notify/mocks"
	"regdesk/internal/payment/models"
	paymentstore "regdesk/internal/payment/store"
	profileservice "regdesk/internal/profile/service"
	profilestore "regdesk/internal/profile/store"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/tx"
	"regdesk/pkg/requestcontext"
)

type ReconcileServiceSuite struct {
	suite.Suite
	catalog       *catalogstore.InMemory
	submissions   *paymentstore.InMemorySubmissions
	registrations *paymentstore.InMemoryRegistrations
	profiles      *profileservice.Service
	sink          *mocks.MockSink
	service       *Service
	logger        *slog.Logger
	now           time.Time
	ctx           context.Context
	seq           int
}

func TestReconcileServiceSuite(t *testing.T) {
	suite.Run(t, new(ReconcileServiceSuite))
}

func (s *ReconcileServiceSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	s.catalog = catalogstore.NewInMemory()
	s.submissions = paymentstore.NewInMemorySubmissions()
	s.registrations = paymentstore.NewInMemoryRegistrations()
	s.profiles = profileservice.New(profilestore.NewInMemory())
	s.sink = mocks.NewMockSink(gomock.NewController(s.T()))
	s.service = s.newService(s.registrations)
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.seq = 0
}

func (s *ReconcileServiceSuite) newService(regs Registrations, opts ...Option) *Service {
	opts = append([]Option{WithLogger(s.logger), WithNotifier(s.sink)}, opts...)
	return New(s.submissions, regs, s.catalog, s.profiles, tx.NewShardedRunner(0), opts...)
}

func (s *ReconcileServiceSuite) participant() id.ParticipantID {
	s.seq++
	p, _, err := s.profiles.CompleteProfile(s.ctx, fmt.Sprintf("idp|%d", s.seq), profileservice.CompleteProfileInput{
		Name: fmt.Sprintf("P%d", s.seq), Email: fmt.Sprintf("p%d@example.org", s.seq), Institution: "UPB",
	})
	s.Require().NoError(err)
	return p.ID
}

func (s *ReconcileServiceSuite) event(fee int64) *catalogmodels.Event {
	e := &catalogmodels.Event{ID: id.NewEventID(), Title: fmt.Sprintf("Event %d", fee), Fee: fee, Currency: "RON", Open: true}
	s.Require().NoError(e.Validate())
	s.Require().NoError(s.catalog.Put(s.ctx, e))
	return e
}

// submit records the submission checkout would create for a paid cart,
// without any registrations.
func (s *ReconcileServiceSuite) submit(pid id.ParticipantID, ref string, total int64, events ...*catalogmodels.Event) *models.Submission {
	sub := &models.Submission{
		ID: id.NewSubmissionID(), ParticipantID: pid, TransactionRef: ref, ProofRef: "proofs/" + ref,
		TotalAmount: total, Currency: "RON", Status: models.SubmissionPending, CreatedAt: s.now, UpdatedAt: s.now,
	}
	for _, e := range events {
		sub.Events = append(sub.Events, models.SubmissionEvent{
			EventID: e.ID, Title: e.Title, RosterIDs: []id.ParticipantID{pid}, Fee: e.Fee,
		})
	}
	s.Require().NoError(s.submissions.Create(s.ctx, sub))
	return sub
}

// register stores the pending registration for one line. A nil link leaves
// the registration without a submission reference.
func (s *ReconcileServiceSuite) register(sub *models.Submission, e *catalogmodels.Event, link id.SubmissionID) {
	_, err := s.registrations.Upsert(s.ctx, &models.Registration{
		ID: id.NewRegistrationID(), EventID: e.ID, RegistrantKey: models.RegistrantKey(id.TeamID{}, sub.ParticipantID),
		RosterIDs: []id.ParticipantID{sub.ParticipantID}, Status: models.RegistrationVerificationPending,
		SubmissionID: link, AmountExpected: e.Fee, CreatedAt: s.now, UpdatedAt: s.now,
	})
	s.Require().NoError(err)
}

func (s *ReconcileServiceSuite) checkout(pid id.ParticipantID, ref string, total int64, events ...*catalogmodels.Event) *models.Submission {
	sub := s.submit(pid, ref, total, events...)
	for _, e := range events {
		s.register(sub, e, sub.ID)
	}
	return sub
}

func (s *ReconcileServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), "unexpected error: %v", err)
}

func (s *ReconcileServiceSuite) TestRejectScenario() {
	pid := s.participant()
	e := s.event(500)
	sub := s.checkout(pid, "TXN1", 500, e)

	s.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n notify.Notification) {
		s.Equal(notify.KindSubmissionRejected, n.Kind)
		s.Equal("illegible screenshot", n.Reason)
		s.Equal(int64(500), n.Amount)
		s.Equal("p1@example.org", n.Recipient)
	}).Times(1)

	d, err := s.service.Decide(s.ctx, sub.ID, ActionReject, "illegible screenshot", "admin-1")
	s.Require().NoError(err)
	s.Equal(models.SubmissionRejected, d.Submission.Status)
	s.Equal("illegible screenshot", d.Submission.RejectionReason)

	regs, err := s.registrations.ListBySubmission(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Require().Len(regs, 1)
	s.Equal(models.RegistrationRejected, regs[0].Status)

	_, err = s.service.Decide(s.ctx, sub.ID, ActionReject, "again", "admin-1")
	s.requireCode(err, dErrors.CodeInvalidTransition)
	_, err = s.service.Decide(s.ctx, sub.ID, ActionVerify, "", "admin-1")
	s.requireCode(err, dErrors.CodeInvalidTransition)

	p, err := s.profiles.Get(s.ctx, pid)
	s.Require().NoError(err)
	s.Empty(p.PaidEvents, "reject never touches the paid set")
	got, err := s.catalog.Get(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Zero(got.RegisteredCount)
}

func (s *ReconcileServiceSuite) TestVerifyIsIdempotent() {
	pid := s.participant()
	a, b := s.event(600), s.event(200)
	sub := s.checkout(pid, "TXN2", 800, a, b)

	s.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, n notify.Notification) {
		s.Equal(notify.KindSubmissionVerified, n.Kind)
		s.ElementsMatch([]string{a.Title, b.Title}, n.EventTitles)
	}).Times(1)

	first, err := s.service.Decide(s.ctx, sub.ID, ActionVerify, "", "admin-1")
	s.Require().NoError(err)
	s.False(first.Replayed)
	s.Equal(models.SubmissionVerified, first.Submission.Status)
	s.Equal("admin-1", first.Submission.VerifierID)
	s.Require().NotNil(first.Submission.VerifiedAt)
	s.Require().Len(first.Lines, 2)
	s.Equal(int64(600), first.Lines[0].Amount)
	s.Equal(int64(200), first.Lines[1].Amount)
	s.Equal("direct_link", first.Lines[0].MatchedBy)

	snapshot := func() ([]*models.Registration, []id.EventID, []int) {
		regs, err := s.registrations.ListBySubmission(s.ctx, sub.ID)
		s.Require().NoError(err)
		p, err := s.profiles.Get(s.ctx, pid)
		s.Require().NoError(err)
		var counts []int
		for _, e := range []*catalogmodels.Event{a, b} {
			got, err := s.catalog.Get(s.ctx, e.ID)
			s.Require().NoError(err)
			counts = append(counts, got.RegisteredCount)
		}
		return regs, p.PaidEvents, counts
	}
	regs1, paid1, counts1 := snapshot()
	s.Equal([]int{1, 1}, counts1)
	for _, r := range regs1 {
		s.Equal(models.RegistrationManualVerified, r.Status)
	}

	later := requestcontext.WithTime(context.Background(), s.now.Add(time.Hour))
	for range 3 {
		again, err := s.service.Decide(later, sub.ID, ActionVerify, "", "admin-2")
		s.Require().NoError(err)
		s.True(again.Replayed)
		s.Equal("admin-1", again.Submission.VerifierID, "original verifier is kept")
		s.Equal(first.Submission.VerifiedAt, again.Submission.VerifiedAt)
	}

	regs2, paid2, counts2 := snapshot()
	s.Equal(counts1, counts2)
	s.ElementsMatch(paid1, paid2)
	s.Require().Len(regs2, len(regs1))
	before := make(map[id.RegistrationID]*models.Registration, len(regs1))
	for _, r := range regs1 {
		before[r.ID] = r
	}
	for _, r := range regs2 {
		prev, ok := before[r.ID]
		s.Require().True(ok)
		s.Equal(prev.Status, r.Status)
		s.Equal(*prev.AmountPaid, *r.AmountPaid)
	}
}

func (s *ReconcileServiceSuite) TestFallbackRelinksLostRegistration() {
	pid := s.participant()
	e := s.event(300)
	sub := s.submit(pid, "TXN3", 300, e)
	s.register(sub, e, id.SubmissionID{})
	s.sink.EXPECT().Publish(gomock.Any(), gomock.Any())

	d, err := s.service.Decide(s.ctx, sub.ID, ActionVerify, "", "admin-1")
	s.Require().NoError(err)
	s.Require().Len(d.Lines, 1)
	s.Equal("fallback", d.Lines[0].MatchedBy)

	reg, err := s.registrations.FindByEventAndSubmission(s.ctx, e.ID, sub.ID)
	s.Require().NoError(err, "registration is linked retroactively")
	s.Equal(models.RegistrationManualVerified, reg.Status)
}

func (s *ReconcileServiceSuite) TestFallbackDoesNotTakeAnotherSubmissionsRegistration() {
	pid := s.participant()
	e := s.event(300)
	owner := s.checkout(pid, "TXN-A", 300, e)
	stray := s.submit(pid, "TXN-B", 300, e)
	s.sink.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(2)

	d, err := s.service.Decide(s.ctx, stray.ID, ActionVerify, "", "admin-1")
	s.Require().NoError(err)
	s.Require().Len(d.Lines, 1)
	s.True(d.Lines[0].Unmatched)

	d, err = s.service.Decide(s.ctx, owner.ID, ActionVerify, "", "admin-1")
	s.Require().NoError(err)
	s.Require().Len(d.Lines, 1)
	s.Equal("direct_link", d.Lines[0].MatchedBy)

	reg, err := s.registrations.FindByEventAndSubmission(s.ctx, e.ID, owner.ID)
	s.Require().NoError(err, "registration stays with its submission")
	s.Equal(models.RegistrationManualVerified, reg.Status)
	got, err := s.catalog.Get(s.ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(1, got.RegisteredCount)
}

func (s *ReconcileServiceSuite) TestUnmatchedLineDoesNotBlockOthers() {
	pid := s.participant()
	matched, missing := s.event(400), s.event(100)
	sub := s.submit(pid, "TXN4", 500, matched, missing)
	s.register(sub, matched, sub.ID)
	s.sink.EXPECT().Publish(gomock.Any(), gomock.Any())

	d, err := s.service.Decide(s.ctx, sub.ID, ActionVerify, "", "admin-1")
	s.Require().NoError(err)
	s.Equal(models.SubmissionVerified, d.Submission.Status)
	s.Require().Len(d.Lines, 2)
	s.Equal("direct_link", d.Lines[0].MatchedBy)
	s.Equal(int64(400), d.Lines[0].Amount)
	s.True(d.Lines[1].Unmatched)

	got, err := s.catalog.Get(s.ctx, missing.ID)
	s.Require().NoError(err)
	s.Zero(got.RegisteredCount, "unmatched lines are not counted")
	got, err = s.catalog.Get(s.ctx, matched.ID)
	s.Require().NoError(err)
	s.Equal(1, got.RegisteredCount)
}

type failingUpdates struct {
	*paymentstore.InMemoryRegistrations
}

func (failingUpdates) Update(context.Context, *models.Registration) error {
	return errors.New("disk full")
}

func (s *ReconcileServiceSuite) TestPersistenceFailureLeavesPending() {
	pid := s.participant()
	sub := s.checkout(pid, "TXN5", 300, s.event(300))
	svc := s.newService(failingUpdates{s.registrations})

	_, err := svc.Decide(s.ctx, sub.ID, ActionVerify, "", "admin-1")
	s.requireCode(err, dErrors.CodeInternal)

	got, err := s.submissions.FindByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.SubmissionPending, got.Status)
}

func (s *ReconcileServiceSuite) TestDecideValidation() {
	pid := s.participant()
	sub := s.checkout(pid, "TXN6", 300, s.event(300))

	_, err := s.service.Decide(s.ctx, sub.ID, ActionReject, "  ", "admin-1")
	s.requireCode(err, dErrors.CodeValidation)
	_, err = s.service.Decide(s.ctx, sub.ID, Action("refund"), "", "admin-1")
	s.requireCode(err, dErrors.CodeValidation)
	_, err = s.service.Decide(s.ctx, sub.ID, ActionVerify, "", "")
	s.requireCode(err, dErrors.CodeValidation)
	_, err = s.service.Decide(s.ctx, id.NewSubmissionID(), ActionVerify, "", "admin-1")
	s.requireCode(err, dErrors.CodeNotFound)
}

type fakeLinker struct{}

func (fakeLinker) URL(_ context.Context, ref string) (string, error) {
	return "https://signed.example.org/" + ref, nil
}

func (s *ReconcileServiceSuite) TestList() {
	svc := s.newService(s.registrations, WithProofLinker(fakeLinker{}))
	pid := s.participant()
	var subs []*models.Submission
	for i := range 3 {
		subs = append(subs, s.checkout(pid, fmt.Sprintf("TXL%d", i), 100, s.event(100)))
	}
	s.sink.EXPECT().Publish(gomock.Any(), gomock.Any())
	_, err := svc.Decide(s.ctx, subs[0].ID, ActionReject, "wrong amount", "admin-1")
	s.Require().NoError(err)

	page, err := svc.List(s.ctx, ListInput{Status: models.SubmissionPending, PageSize: 1})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Require().Len(page.Items, 1)
	s.Equal(1, page.Page)
	s.Equal(map[models.SubmissionStatus]int{
		models.SubmissionPending:  2,
		models.SubmissionVerified: 0,
		models.SubmissionRejected: 1,
	}, page.Counts)
	s.Equal("https://signed.example.org/"+page.Items[0].Submission.ProofRef, page.Items[0].ProofURL)

	page, err = svc.List(s.ctx, ListInput{Page: 2, PageSize: 2})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Len(page.Items, 1)

	_, err = svc.List(s.ctx, ListInput{Status: "archived"})
	s.requireCode(err, dErrors.CodeValidation)
}
