package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "promion:fingerprint:"

// RedisRegistry is a Registry backed by Redis, shared across processes so a
// collision seen by one worker is visible to all of them.
type RedisRegistry struct {
	client redis.UniversalClient
}

// NewRedisRegistry creates a registry on top of an existing Redis client.
func NewRedisRegistry(client redis.UniversalClient) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Lookup(ctx context.Context, digest string) (*Entry, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+digest).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to look up digest %s: %w", digest, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode registry entry for %s: %w", digest, err)
	}

	return &entry, nil
}

func (r *RedisRegistry) Register(ctx context.Context, digest string, entry Entry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode registry entry for %s: %w", digest, err)
	}

	err = r.client.Set(ctx, redisKeyPrefix+digest, payload, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to register digest %s: %w", digest, err)
	}

	return nil
}

func (r *RedisRegistry) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()

	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete registry key %s: %w", iter.Val(), err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan registry keys: %w", err)
	}

	return nil
}
