package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps the token under prefix+":"+key in Redis. It lets several
// client processes on one host share a login without a shared filesystem.
type RedisStorage struct {
	redis *redis.Client
	key   string
	ttl   time.Duration
}

// NewRedisStorage returns a Redis backed storage. A zero ttl stores the token
// without expiry.
func NewRedisStorage(rdb *redis.Client, prefix, key string, ttl time.Duration) *RedisStorage {
	if key == "" {
		key = DefaultTokenKey
	}
	if prefix != "" {
		key = prefix + ":" + key
	}
	return &RedisStorage{redis: rdb, key: key, ttl: ttl}
}

// Key returns the Redis key holding the token.
func (r *RedisStorage) Key() string {
	return r.key
}

func (r *RedisStorage) Load(ctx context.Context) (string, bool, error) {
	if r == nil || r.redis == nil {
		return "", false, ErrStorageUnavailable
	}
	token, err := r.redis.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if token == "" {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisStorage) Save(ctx context.Context, token string) error {
	if r == nil || r.redis == nil {
		return ErrStorageUnavailable
	}
	if err := r.redis.Set(ctx, r.key, token, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context) error {
	if r == nil || r.redis == nil {
		return ErrStorageUnavailable
	}
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
