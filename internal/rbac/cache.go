package rbac

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps resolved permission sets in Redis keyed per user, one hash field
// per tenant filter. Invalidation deletes the whole user entry; grant changes
// that affect many users rely on the short TTL instead.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a permission cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached permission set and whether it was present.
func (c *Cache) Get(ctx context.Context, userID int64, tenantID *int64) ([]Permission, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.HGet(ctx, c.key(userID), fieldFor(tenantID)).Bytes()
	if err != nil {
		return nil, false
	}
	var perms []Permission
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false
	}
	return perms, true
}

// Set stores a resolved permission set. Failures are ignored; the cache is an
// optimization, never the source of truth.
func (c *Cache) Set(ctx context.Context, userID int64, tenantID *int64, perms []Permission) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		return
	}
	key := c.key(userID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, fieldFor(tenantID), payload)
	pipe.Expire(ctx, key, c.ttl)
	_, _ = pipe.Exec(ctx)
}

// Invalidate drops all cached permission sets for a user, called whenever the
// user's assignments change.
func (c *Cache) Invalidate(ctx context.Context, userID int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, c.key(userID)).Err()
}

func (c *Cache) key(userID int64) string {
	return "meridian:perms:" + strconv.FormatInt(userID, 10)
}

func fieldFor(tenantID *int64) string {
	if tenantID == nil {
		return "global"
	}
	return strconv.FormatInt(*tenantID, 10)
}
