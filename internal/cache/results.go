package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Results wraps Redis helpers for short-TTL tracking payload memoization.
// Entries expire server-side, so stale data is never served: a read past the
// TTL is simply a miss.
type Results struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResults constructs a cache helper with the configured TTL.
func NewResults(client *redis.Client, ttl time.Duration) *Results {
	return &Results{client: client, ttl: ttl}
}

// TTL returns the configured entry lifetime.
func (c *Results) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

// Key builds the canonical cache key for a tracking lookup. The kind defaults
// to "auto" so an unspecified lookup shares entries with inferred ones.
func Key(scope, trackingNumber, kind string) string {
	if strings.TrimSpace(kind) == "" {
		kind = "auto"
	}
	return fmt.Sprintf("track:%s:%s:%s", scope, strings.ToUpper(strings.TrimSpace(trackingNumber)), kind)
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the
// key existed and was still live.
func (c *Results) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Results) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" || c.ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Invalidate removes the entry for key, if present.
func (c *Results) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
