package behavior

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gvargas9/smartterapist/internal/models"
	"github.com/redis/go-redis/v9"
)

const noneMarker = "none"

func cacheKey(clientID uuid.UUID) string {
	return "behavior:active:" + clientID.String()
}

// Cache keeps resolved presets in Redis for a short TTL so bursts of
// appends don't re-read assignments on every turn. Misses are cached
// too, under a marker value. A nil *Cache is a no-op.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached preset and whether an entry existed. A cached
// "no active preset" comes back as (nil, true).
func (c *Cache) Get(ctx context.Context, clientID uuid.UUID) (*models.Behavior, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.rdb.Get(ctx, cacheKey(clientID)).Result()
	if err != nil {
		return nil, false
	}
	if val == noneMarker {
		return nil, true
	}
	var b models.Behavior
	if err := json.Unmarshal([]byte(val), &b); err != nil {
		return nil, false
	}
	return &b, true
}

// Put stores the resolved preset; nil records "no active preset".
func (c *Cache) Put(ctx context.Context, clientID uuid.UUID, b *models.Behavior) {
	if c == nil {
		return
	}
	val := noneMarker
	if b != nil {
		raw, err := json.Marshal(b)
		if err != nil {
			return
		}
		val = string(raw)
	}
	if err := c.rdb.Set(ctx, cacheKey(clientID), val, c.ttl).Err(); err != nil {
		slog.Warn("behavior cache write failed", "client_id", clientID, "error", err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, clientID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, cacheKey(clientID)).Err(); err != nil {
		slog.Warn("behavior cache invalidate failed", "client_id", clientID, "error", err)
	}
}
