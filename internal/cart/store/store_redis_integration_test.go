//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regdesk/internal/cart/models"
	"regdesk/internal/cart/store"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/testutil/containers"
)

type RedisCartSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisStore
}

func TestRedisCartSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCartSuite))
}

func (s *RedisCartSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = store.NewRedis(s.redis.Client)
}

func (s *RedisCartSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func addEvent(eventID id.EventID, now time.Time, ttl time.Duration, pid id.ParticipantID) store.MutateFunc {
	return func(current *models.Cart) (*models.Cart, error) {
		c := current
		if c == nil {
			c = models.New(pid, now, ttl)
		}
		c.Currency = "RON"
		c.Items = append(c.Items, models.Item{EventID: eventID, RosterIDs: []id.ParticipantID{pid}, AddedAt: now})
		return c, nil
	}
}

func (s *RedisCartSuite) TestRoundTripAndDelete() {
	ctx := context.Background()
	pid := id.NewParticipantID()
	now := time.Now()

	_, err := s.store.Get(ctx, pid, now)
	s.ErrorIs(err, sentinel.ErrNotFound)

	eventID := id.NewEventID()
	_, err = s.store.Mutate(ctx, pid, now, addEvent(eventID, now, time.Hour, pid))
	s.Require().NoError(err)

	got, err := s.store.Get(ctx, pid, now)
	s.Require().NoError(err)
	s.True(got.HasEvent(eventID))
	s.WithinDuration(now.Add(time.Hour), got.ExpiresAt, time.Second)

	s.Require().NoError(s.store.Delete(ctx, pid))
	_, err = s.store.Get(ctx, pid, now)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisCartSuite) TestEmptyResultDeletesKey() {
	ctx := context.Background()
	pid := id.NewParticipantID()
	now := time.Now()
	eventID := id.NewEventID()

	_, err := s.store.Mutate(ctx, pid, now, addEvent(eventID, now, time.Hour, pid))
	s.Require().NoError(err)
	_, err = s.store.Mutate(ctx, pid, now, func(current *models.Cart) (*models.Cart, error) {
		current.Remove(eventID)
		return current, nil
	})
	s.Require().NoError(err)

	n, err := s.redis.Client.Exists(ctx, "regdesk:cart:"+pid.String()).Result()
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RedisCartSuite) TestKeyExpiresWithCart() {
	ctx := context.Background()
	pid := id.NewParticipantID()
	now := time.Now()

	_, err := s.store.Mutate(ctx, pid, now, addEvent(id.NewEventID(), now, 2*time.Second, pid))
	s.Require().NoError(err)
	ttl, err := s.redis.Client.TTL(ctx, "regdesk:cart:"+pid.String()).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 2*time.Second)

	s.Eventually(func() bool {
		_, err := s.store.Get(ctx, pid, time.Now())
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)
}

// TestConcurrentAddsAreNotLost races distinct adds on one cart; optimistic
// retries must keep every item or report a conflict.
func (s *RedisCartSuite) TestConcurrentAddsAreNotLost() {
	ctx := context.Background()
	pid := id.NewParticipantID()
	now := time.Now()

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Mutate(ctx, pid, now, addEvent(id.NewEventID(), now, time.Hour, pid))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := s.store.Get(ctx, pid, now)
	s.Require().NoError(err)
	s.Len(got.Items, succeeded)
	s.Positive(succeeded)
}
