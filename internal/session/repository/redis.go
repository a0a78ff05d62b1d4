package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const defaultRedisPrefix = "fleet:refresh"

// RedisStore keeps one key per user holding the refresh-token hash. Keys expire with the
// refresh token so abandoned sessions do not accumulate.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a Store backed by redis. Keys are "<prefix>:<userID>"; a trailing colon
// on prefix is dropped. ttl should equal the refresh-token lifetime; zero means keys never expire.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + ":" + userID
}

func (s *RedisStore) RefreshTokenHash(ctx context.Context, userID string) (string, error) {
	hash, err := s.redis.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", oops.Code("SESSION_GET_FAILED").With("user_id", userID).Wrap(err)
	}
	return hash, nil
}

func (s *RedisStore) SetRefreshTokenHash(ctx context.Context, userID, hash string) error {
	if err := s.redis.Set(ctx, s.key(userID), hash, s.ttl).Err(); err != nil {
		return oops.Code("SESSION_SET_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (s *RedisStore) ClearRefreshTokenHash(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return oops.Code("SESSION_CLEAR_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}
