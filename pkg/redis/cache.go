package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Default TTLs per kind of upstream data
const (
	TTLShort  = 1 * time.Minute  // quotes
	TTLMedium = 15 * time.Minute // gainers list, headlines
	TTLLong   = 1 * time.Hour    // daily history
	TTLDaily  = 24 * time.Hour   // float estimates
)

// Cache stores JSON values under a key prefix. It is the cross-process
// second level behind the in-memory result cache.
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a JSON cache; keys are stored as "<prefix>:<key>"
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{client: client, prefix: prefix}
}

// Enabled reports whether the backing client is live
func (c *Cache) Enabled() bool {
	return c != nil && c.client.Enabled()
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// Get decodes the value at k into dest. A missing key is (false, nil).
func (c *Cache) Get(ctx context.Context, k string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}

	data, err := c.client.rdb.Get(ctx, c.key(k)).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("cache get %s: %w", k, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", k, err)
	}
	return true, nil
}

// Set stores value at k for ttl
func (c *Cache) Set(ctx context.Context, k string, value interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", k, err)
	}
	if err := c.client.rdb.Set(ctx, c.key(k), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", k, err)
	}
	return nil
}

// Delete removes k
func (c *Cache) Delete(ctx context.Context, k string) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.rdb.Del(ctx, c.key(k)).Err()
}

// Flush removes keys starting with match (all keys when empty) and returns
// how many were deleted
func (c *Cache) Flush(ctx context.Context, match string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}

	deleted := 0
	iter := c.client.rdb.Scan(ctx, 0, c.key(match)+"*", 200).Iterator()
	for iter.Next(ctx) {
		n, err := c.client.rdb.Del(ctx, iter.Val()).Result()
		if err != nil {
			return deleted, fmt.Errorf("cache flush: %w", err)
		}
		deleted += int(n)
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache flush: %w", err)
	}
	return deleted, nil
}
