package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBackend stores entries under "cache:<instance>:<key>". The instance ID
// changes on every start, so a restart drops everything written before it.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, instanceID uuid.UUID, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: "cache:" + instanceID.String() + ":",
		ttl:    ttl,
	}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
}
