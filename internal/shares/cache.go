package shares

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/usrflo/mailtrain/internal/pkg/logger"
)

// Cache is a read-through redis cache for effective permission sets.
// Entries are TTL-bounded and invalidated whenever the entity's
// permissions are rebuilt, so staleness is limited to the window between
// a rebuild commit and its invalidation call.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache creates a permission cache on the given redis client.
func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "mailtrain"
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(typeID string, entityID, userID int64) string {
	return fmt.Sprintf("%s:perms:%s:%d:%d", c.prefix, typeID, entityID, userID)
}

// Get returns the cached operation set, if present.
func (c *Cache) Get(ctx context.Context, typeID string, entityID, userID int64) ([]string, bool) {
	data, err := c.client.Get(ctx, c.key(typeID, entityID, userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var ops []string
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, false
	}
	return ops, true
}

// Set stores an operation set. Cache failures are logged, never fatal.
func (c *Cache) Set(ctx context.Context, typeID string, entityID, userID int64, ops []string) {
	data, err := json.Marshal(ops)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(typeID, entityID, userID), data, c.ttl).Err(); err != nil {
		logger.Warn("permission cache set failed", "err", err)
	}
}

// Invalidate drops every cached set for the entity, across all users.
func (c *Cache) Invalidate(ctx context.Context, typeID string, entityID int64) {
	pattern := fmt.Sprintf("%s:perms:%s:%d:*", c.prefix, typeID, entityID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("permission cache invalidation failed", "key", iter.Val(), "err", err)
		}
	}
	if err := iter.Err(); err != nil {
		logger.Warn("permission cache scan failed", "err", err)
	}
}
