//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regdesk/internal/payment/models"
	"regdesk/internal/payment/store"
	"regdesk/internal/platform/postgres"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/testutil/containers"
)

type PostgresPaymentSuite struct {
	suite.Suite
	postgres      *containers.PostgresContainer
	submissions   *store.PostgresSubmissions
	registrations *store.PostgresRegistrations
	ctx           context.Context
}

func TestPostgresPaymentSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresPaymentSuite))
}

func (s *PostgresPaymentSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(s.ctx, s.postgres.DB))
	s.submissions = store.NewPostgresSubmissions(s.postgres.DB)
	s.registrations = store.NewPostgresRegistrations(s.postgres.DB)
}

func (s *PostgresPaymentSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "registrations", "payment_submissions"))
}

func (s *PostgresPaymentSuite) submission(ref string) *models.Submission {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Submission{
		ID:             id.NewSubmissionID(),
		ParticipantID:  id.NewParticipantID(),
		TransactionRef: ref,
		ProofRef:       "proof/" + ref,
		TotalAmount:    800,
		Currency:       "RON",
		Events: []models.SubmissionEvent{
			{EventID: id.NewEventID(), Title: "Algorithms", Fee: 300},
			{EventID: id.NewEventID(), Title: "Relay", Fee: 500},
		},
		Status:    models.SubmissionPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *PostgresPaymentSuite) TestConcurrentDuplicateRefs() {
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.submissions.Create(s.ctx, s.submission("TXN1"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(7), conflicts.Load())
}

func (s *PostgresPaymentSuite) TestIDCollisionIsNotADuplicateRef() {
	first := s.submission("TXN-A")
	s.Require().NoError(s.submissions.Create(s.ctx, first))

	again := s.submission("TXN-B")
	again.ID = first.ID
	err := s.submissions.Create(s.ctx, again)
	s.Require().Error(err)
	s.NotErrorIs(err, sentinel.ErrConflict)

	s.ErrorIs(s.submissions.Create(s.ctx, s.submission("TXN-A")), sentinel.ErrConflict)
}

func (s *PostgresPaymentSuite) TestRoundTripAndTransition() {
	sub := s.submission("TXN2")
	sub.TeamID = id.NewTeamID()
	s.Require().NoError(s.submissions.Create(s.ctx, sub))

	got, err := s.submissions.FindByID(s.ctx, sub.ID)
	s.Require().NoError(err)
	s.Equal(sub.Events, got.Events)
	s.Equal(sub.TeamID, got.TeamID)
	s.Nil(got.VerifiedAt)

	at := time.Now().UTC().Truncate(time.Microsecond)
	verified, err := s.submissions.Transition(s.ctx, sub.ID, models.SubmissionPending, func(x *models.Submission) {
		x.Status = models.SubmissionVerified
		x.VerifierID = "admin"
		x.VerifiedAt = &at
	})
	s.Require().NoError(err)
	s.Equal("admin", verified.VerifierID)

	_, err = s.submissions.Transition(s.ctx, sub.ID, models.SubmissionPending, func(x *models.Submission) {
		x.Status = models.SubmissionRejected
	})
	s.ErrorIs(err, sentinel.ErrInvalidState)

	counts, err := s.submissions.CountByStatus(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, counts[models.SubmissionVerified])

	page, total, err := s.submissions.List(s.ctx, store.ListFilter{Status: models.SubmissionVerified, Limit: 10})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Len(page, 1)
}

func (s *PostgresPaymentSuite) TestUpsertGuard() {
	eventID, teamID := id.NewEventID(), id.NewTeamID()
	member := id.NewParticipantID()
	key := models.RegistrantKey(teamID, member)
	now := time.Now().UTC()
	first, second := id.NewSubmissionID(), id.NewSubmissionID()

	reg := func(submissionID id.SubmissionID, expected int64) *models.Registration {
		return &models.Registration{
			ID: id.NewRegistrationID(), EventID: eventID, RegistrantKey: key, TeamID: teamID,
			RosterIDs: []id.ParticipantID{member}, Status: models.RegistrationVerificationPending,
			SubmissionID: submissionID, AmountExpected: expected, CreatedAt: now, UpdatedAt: now,
		}
	}

	stored, err := s.registrations.Upsert(s.ctx, reg(first, 500))
	s.Require().NoError(err)
	replayed, err := s.registrations.Upsert(s.ctx, reg(first, 700))
	s.Require().NoError(err)
	s.Equal(stored.ID, replayed.ID)
	s.Equal(int64(500), replayed.AmountExpected)

	_, err = s.registrations.Upsert(s.ctx, reg(second, 500))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	byMember, err := s.registrations.FindActiveByEventAndRosterMember(s.ctx, eventID, member)
	s.Require().NoError(err)
	s.Equal(stored.ID, byMember.ID)

	paid := int64(500)
	byMember.Status = models.RegistrationManualVerified
	byMember.AmountPaid = &paid
	s.Require().NoError(s.registrations.Update(s.ctx, byMember))

	linked, err := s.registrations.ListBySubmission(s.ctx, first)
	s.Require().NoError(err)
	s.Require().Len(linked, 1)
	s.Equal(models.RegistrationManualVerified, linked[0].Status)
	s.Equal(&paid, linked[0].AmountPaid)
}
