package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const opaqueTokenKeyPrefix = "oauth:token:"

// TokenCache remembers successful opaque-token lookups. Implementations
// must not be trusted for expiry; the gate re-checks ExpiresAt on every hit.
type TokenCache interface {
	Get(ctx context.Context, token string) (OpaqueToken, bool, error)
	Set(ctx context.Context, token string, record OpaqueToken, ttl time.Duration) error
}

// RedisTokenCache stores records as JSON under the SHA-256 of the token, so
// raw tokens never reach redis.
type RedisTokenCache struct {
	client *redis.Client
	maxTTL time.Duration
	now    func() time.Time
}

func NewRedisTokenCache(client *redis.Client, maxTTL time.Duration) *RedisTokenCache {
	if maxTTL <= 0 {
		maxTTL = time.Minute
	}
	return &RedisTokenCache{
		client: client,
		maxTTL: maxTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(options), nil
}

func (c *RedisTokenCache) Get(ctx context.Context, token string) (OpaqueToken, bool, error) {
	raw, err := c.client.Get(ctx, opaqueTokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return OpaqueToken{}, false, nil
		}
		return OpaqueToken{}, false, fmt.Errorf("get cached opaque token: %w", err)
	}

	var record OpaqueToken
	if err := json.Unmarshal(raw, &record); err != nil {
		return OpaqueToken{}, false, fmt.Errorf("decode cached opaque token: %w", err)
	}

	return record, true, nil
}

// Set caches record for at most ttl, capped by the cache maximum and by the
// token's own remaining lifetime. Already-expired records are skipped.
func (c *RedisTokenCache) Set(ctx context.Context, token string, record OpaqueToken, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	if remaining := record.ExpiresAt.Sub(c.now()); remaining < ttl {
		ttl = remaining
	}
	if ttl < time.Millisecond {
		return nil
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode opaque token: %w", err)
	}

	if err := c.client.Set(ctx, opaqueTokenKey(token), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache opaque token: %w", err)
	}

	return nil
}

func opaqueTokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return opaqueTokenKeyPrefix + hex.EncodeToString(sum[:])
}
