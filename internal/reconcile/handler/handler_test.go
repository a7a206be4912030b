package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"regdesk/internal/payment/models"
	"regdesk/internal/reconcile/handler/mocks"
	"regdesk/internal/reconcile/service"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/testutil"
)

type ReconcileHandlerSuite struct {
	suite.Suite
	service  *mocks.MockService
	router   http.Handler
	verifier id.ParticipantID
}

func TestReconcileHandlerSuite(t *testing.T) {
	suite.Run(t, new(ReconcileHandlerSuite))
}

func (s *ReconcileHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
	s.verifier = id.NewParticipantID()
}

func (s *ReconcileHandlerSuite) do(req *http.Request) *http.Request {
	return testutil.WithParticipant(req, "idp|admin", s.verifier)
}

func (s *ReconcileHandlerSuite) pending() *models.Submission {
	return &models.Submission{
		ID: id.NewSubmissionID(), ParticipantID: id.NewParticipantID(), TransactionRef: "TXN1",
		ProofRef: "proofs/1.png", TotalAmount: 500, Currency: "RON", Status: models.SubmissionPending,
		Events:    []models.SubmissionEvent{{EventID: id.NewEventID(), Title: "Quiz", Fee: 500}},
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (s *ReconcileHandlerSuite) TestList() {
	sub := s.pending()
	s.service.EXPECT().
		List(gomock.Any(), service.ListInput{Status: models.SubmissionPending, Page: 2, PageSize: 10}).
		Return(&service.Page{
			Items:    []service.Item{{Submission: sub, ProofURL: "https://proofs.example.org/1.png"}},
			Total:    11,
			Page:     2,
			PageSize: 10,
			Counts:   map[models.SubmissionStatus]int{models.SubmissionPending: 11},
		}, nil)

	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodGet,
		"/admin/submissions?status=pending&page=2&page_size=10")))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[ListResponse](s.T(), rr)
	s.Equal(11, resp.Total)
	s.Equal(11, resp.Counts[models.SubmissionPending])
	s.Require().Len(resp.Submissions, 1)
	s.Equal(sub.ID, resp.Submissions[0].ID)
	s.Equal("https://proofs.example.org/1.png", resp.Submissions[0].ProofURL)
	s.Nil(resp.Submissions[0].TeamID)
}

func (s *ReconcileHandlerSuite) TestListRejectsBadPage() {
	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodGet, "/admin/submissions?page=two")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *ReconcileHandlerSuite) TestVerify() {
	sub := s.pending()
	sub.Status = models.SubmissionVerified
	regID := id.NewRegistrationID()
	s.service.EXPECT().
		Decide(gomock.Any(), sub.ID, service.ActionVerify, "", s.verifier.String()).
		Return(&service.Decision{
			Submission: sub,
			Lines: []service.LineOutcome{{
				EventID: sub.Events[0].EventID, Title: "Quiz", Amount: 500, MatchedBy: "direct_link", RegistrationID: regID,
			}},
		}, nil)

	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodPost,
		"/admin/submissions/"+sub.ID.String()+"/verify")))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[DecisionResponse](s.T(), rr)
	s.Equal("submission verified", resp.Message)
	s.Equal(models.SubmissionVerified, resp.Submission.Status)
	s.Require().Len(resp.Lines, 1)
	s.Require().NotNil(resp.Lines[0].RegistrationID)
	s.Equal(regID, *resp.Lines[0].RegistrationID)
}

func (s *ReconcileHandlerSuite) TestVerifyReplay() {
	sub := s.pending()
	sub.Status = models.SubmissionVerified
	s.service.EXPECT().Decide(gomock.Any(), sub.ID, service.ActionVerify, "", gomock.Any()).
		Return(&service.Decision{Submission: sub, Replayed: true}, nil)

	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodPost,
		"/admin/submissions/"+sub.ID.String()+"/verify")))
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "message", "submission re-verified")
}

func (s *ReconcileHandlerSuite) TestReject() {
	sub := s.pending()
	sub.Status = models.SubmissionRejected
	sub.RejectionReason = "illegible screenshot"
	s.service.EXPECT().
		Decide(gomock.Any(), sub.ID, service.ActionReject, "illegible screenshot", s.verifier.String()).
		Return(&service.Decision{Submission: sub}, nil)

	rr := testutil.DoRequest(s.router, s.do(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/admin/submissions/"+sub.ID.String()+"/reject", RejectRequest{Reason: "  illegible screenshot "})))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[DecisionResponse](s.T(), rr)
	s.Equal("submission rejected", resp.Message)
	s.Equal("illegible screenshot", resp.Submission.RejectionReason)
}

func (s *ReconcileHandlerSuite) TestRejectRequiresReason() {
	rr := testutil.DoRequest(s.router, s.do(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/admin/submissions/"+id.NewSubmissionID().String()+"/reject", RejectRequest{Reason: " "})))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *ReconcileHandlerSuite) TestRejectTwiceConflicts() {
	subID := id.NewSubmissionID()
	s.service.EXPECT().Decide(gomock.Any(), subID, service.ActionReject, "again", gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "submission is already rejected"))

	rr := testutil.DoRequest(s.router, s.do(testutil.NewJSONRequest(s.T(), http.MethodPost,
		"/admin/submissions/"+subID.String()+"/reject", RejectRequest{Reason: "again"})))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "invalid_transition")
}

func (s *ReconcileHandlerSuite) TestInvalidSubmissionID() {
	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodPost, "/admin/submissions/nope/verify")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}
