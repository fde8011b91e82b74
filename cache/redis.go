package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots in Redis so several processes serving the same
// user (gateway instances, server-side rendering) share one cache. Redis
// failures degrade to a cache miss; reads fall back to the service without
// surfacing an error.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps the provided client. The prefix namespaces keys so one
// Redis instance can back several deployments.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// Drop whatever is there so a transient error cannot pin a
			// corrupt snapshot.
			_ = r.client.Del(ctx, r.key(key)).Err()
		}
		return nil, false
	}
	return data, true
}

func (r *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	_ = r.client.Set(ctx, r.key(key), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, key string) {
	_ = r.client.Del(ctx, r.key(key)).Err()
}
