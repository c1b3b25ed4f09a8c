package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"paraph/pkg/platform/sentinel"
)

const challengeKeyPrefix = "otp:challenge:"

// RedisStore persists challenges in Redis with an optional TTL so abandoned
// challenges age out on their own. Recommended for multi-instance deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis-backed challenge store. A zero ttl keeps
// challenges until overwritten or deleted.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, challenge *Challenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengeKeyPrefix+challenge.SubjectKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save challenge: %w", sentinel.ErrUnavailable)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, subjectKey string) (*Challenge, error) {
	data, err := s.client.Get(ctx, challengeKeyPrefix+subjectKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("challenge for %s: %w", subjectKey, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", sentinel.ErrUnavailable)
	}

	var challenge Challenge
	if err := json.Unmarshal(data, &challenge); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &challenge, nil
}

func (s *RedisStore) Delete(ctx context.Context, subjectKey string) error {
	deleted, err := s.client.Del(ctx, challengeKeyPrefix+subjectKey).Result()
	if err != nil {
		return fmt.Errorf("delete challenge: %w", sentinel.ErrUnavailable)
	}
	if deleted == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
