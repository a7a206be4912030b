package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"regdesk/internal/cart/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

const (
	cartKeyPrefix = "regdesk:cart:"
	// optimistic retries before a contended cart write gives up
	maxMutateAttempts = 5
)

// RedisStore keeps each cart as a JSON value whose key TTL is the cart's
// remaining lifetime, so Redis performs expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func cartKey(participantID id.ParticipantID) string {
	return cartKeyPrefix + participantID.String()
}

func (s *RedisStore) Get(ctx context.Context, participantID id.ParticipantID, now time.Time) (*models.Cart, error) {
	return s.read(ctx, s.client, cartKey(participantID), now)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) read(ctx context.Context, cmd getter, key string, now time.Time) (*models.Cart, error) {
	raw, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}
	var c models.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if c.Expired(now) {
		return nil, sentinel.ErrNotFound
	}
	return &c, nil
}

// Mutate applies fn inside WATCH/MULTI and retries when another writer
// touched the key first.
func (s *RedisStore) Mutate(ctx context.Context, participantID id.ParticipantID, now time.Time, fn MutateFunc) (*models.Cart, error) {
	key := cartKey(participantID)
	var result *models.Cart
	txf := func(rtx *redis.Tx) error {
		current, err := s.read(ctx, rtx, key, now)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil || next.IsEmpty() {
			_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			result = nil
			return err
		}
		ttl := next.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return sentinel.ErrExpired
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode cart: %w", err)
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		result = next
		return err
	}

	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, sentinel.ErrConflict
}

func (s *RedisStore) Delete(ctx context.Context, participantID id.ParticipantID) error {
	if err := s.client.Del(ctx, cartKey(participantID)).Err(); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
