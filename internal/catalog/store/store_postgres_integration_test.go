//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"regdesk/internal/catalog/models"
	"regdesk/internal/catalog/store"
	"regdesk/internal/platform/postgres"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/testutil/containers"
)

type PostgresCatalogSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresCatalogSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresCatalogSuite))
}

func (s *PostgresCatalogSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(postgres.Migrate(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresCatalogSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "event_counter_claims", "events"))
}

// TestConcurrentClaimsCountOnce replays the same (event, submission) claim
// from many goroutines and expects a single increment.
func (s *PostgresCatalogSuite) TestConcurrentClaimsCountOnce() {
	ctx := context.Background()
	e := &models.Event{ID: id.NewEventID(), Title: "Hackathon", Fee: 500, Currency: "RON", Open: true}
	s.Require().NoError(e.Validate())
	s.Require().NoError(s.store.Put(ctx, e))

	sub := id.NewSubmissionID()
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.IncrementRegistered(ctx, e.ID, sub)
			s.NoError(err)
		}()
	}
	wg.Wait()

	got, err := s.store.Get(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(1, got.RegisteredCount)

	moved, err := s.store.IncrementRegistered(ctx, e.ID, id.NewSubmissionID())
	s.Require().NoError(err)
	s.True(moved)
}

func (s *PostgresCatalogSuite) TestUnknownEvent() {
	_, err := s.store.IncrementRegistered(context.Background(), id.NewEventID(), id.NewSubmissionID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.Get(context.Background(), id.NewEventID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}
