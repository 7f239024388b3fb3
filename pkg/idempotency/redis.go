package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	DefaultCacheTTL = 24 * time.Hour
	keyPrefix       = "devflow:idem:"
)

// RedisCache remembers accepted event ids and fingerprints with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &RedisCache{client: client, ttl: ttl}
}

var _ Cache = (*RedisCache)(nil)

func idKey(eventID string) string {
	return keyPrefix + "id:" + eventID
}

func fingerprintKey(fingerprint string) string {
	return keyPrefix + "fp:" + fingerprint
}

func (c *RedisCache) Lookup(ctx context.Context, eventID, fingerprint string) (string, Match, error) {
	values, err := c.client.MGet(ctx, idKey(eventID), fingerprintKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", MatchNone, nil
		}

		return "", MatchNone, fmt.Errorf("failed to read idempotency keys: %w", err)
	}

	for i, match := range []Match{MatchEventID, MatchFingerprint} {
		if i >= len(values) {
			break
		}

		if executionID, ok := values[i].(string); ok && executionID != "" {
			return executionID, match, nil
		}
	}

	return "", MatchNone, nil
}

func (c *RedisCache) Remember(ctx context.Context, eventID, fingerprint, executionID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, idKey(eventID), executionID, c.ttl)
		pipe.SetNX(ctx, fingerprintKey(fingerprint), executionID, c.ttl)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write idempotency keys: %w", err)
	}

	return nil
}
