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

	"regdesk/internal/checkout/handler/mocks"
	"regdesk/internal/checkout/service"
	"regdesk/internal/payment/models"
	"regdesk/internal/platform/config"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/testutil"
)

type CheckoutHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  http.Handler
	pid     id.ParticipantID
}

func TestCheckoutHandlerSuite(t *testing.T) {
	suite.Run(t, new(CheckoutHandlerSuite))
}

func (s *CheckoutHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	s.router = r
	s.pid = id.NewParticipantID()
}

func (s *CheckoutHandlerSuite) do(req *http.Request) *http.Request {
	return testutil.WithParticipant(req, "idp|ana", s.pid)
}

func (s *CheckoutHandlerSuite) TestSummary() {
	eventID := id.NewEventID()
	s.service.EXPECT().Summary(gomock.Any(), s.pid).Return(&service.Summary{
		Items:         []service.Line{{EventID: eventID, Title: "Quiz", Fee: 500, Available: true}},
		Total:         500,
		Currency:      "RON",
		ItemCount:     1,
		PaymentTarget: config.PaymentTarget{Payee: "Org", Account: "RO49AAAA"},
	}, nil)

	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodGet, "/checkout")))
	testutil.AssertStatusOK(s.T(), rr)
	resp := testutil.UnmarshalResponse[SummaryResponse](s.T(), rr)
	s.Equal(int64(500), resp.Total)
	s.Equal("RO49AAAA", resp.PaymentTarget.Account)
	s.Require().Len(resp.Items, 1)
	s.Equal(eventID, resp.Items[0].EventID)
}

func (s *CheckoutHandlerSuite) TestSummaryEmptyCart() {
	s.service.EXPECT().Summary(gomock.Any(), s.pid).Return(nil, dErrors.New(dErrors.CodeCartEmpty, "cart is empty"))

	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequest(s.T(), http.MethodGet, "/checkout")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "cart_empty")
}

func (s *CheckoutHandlerSuite) TestSubmitPending() {
	sub := &models.Submission{
		ID: id.NewSubmissionID(), Status: models.SubmissionPending, TotalAmount: 500, Currency: "RON",
		CreatedAt: time.Now(),
	}
	s.service.EXPECT().
		Submit(gomock.Any(), s.pid, service.SubmitInput{TransactionRef: "TXN1", ProofRef: "proofs/1.png"}).
		Return(&service.Result{Submission: sub, RegistrationStatus: models.RegistrationVerificationPending}, nil)

	rr := testutil.DoRequest(s.router, s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/checkout",
		SubmitRequest{TransactionRef: "TXN1", ProofRef: "proofs/1.png"})))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	resp := testutil.UnmarshalResponse[SubmitResponse](s.T(), rr)
	s.Equal(models.SubmissionPending, resp.Status)
	s.Equal(sub.ID, resp.SubmissionID)
	s.Equal(models.RegistrationVerificationPending, resp.RegistrationStatus)
}

func (s *CheckoutHandlerSuite) TestSubmitDuplicate() {
	s.service.EXPECT().Submit(gomock.Any(), s.pid, gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeDuplicateTransaction, "transaction reference was already submitted"))

	rr := testutil.DoRequest(s.router, s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/checkout",
		SubmitRequest{TransactionRef: "TXN1", ProofRef: "p"})))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "duplicate_transaction")
}

func (s *CheckoutHandlerSuite) TestSubmitMalformedBody() {
	rr := testutil.DoRequest(s.router, s.do(testutil.NewRequestWithBody(s.T(), http.MethodPost, "/checkout", "{")))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *CheckoutHandlerSuite) TestSubmitInternalErrorHidesMessage() {
	s.service.EXPECT().Submit(gomock.Any(), s.pid, gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeInternal, "pq: connection refused"))

	rr := testutil.DoRequest(s.router, s.do(testutil.NewJSONRequest(s.T(), http.MethodPost, "/checkout", SubmitRequest{})))
	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	s.NotContains(rr.Body.String(), "connection refused")
}
