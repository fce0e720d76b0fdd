package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// LevelCache is a time-bounded read cache over level rows. Every ledger write
// invalidates the touched key, so a cached read is at most TTL stale and
// never survives a write it would contradict.
type LevelCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewLevelCache instantiates the cache helper. A nil client disables caching.
func NewLevelCache(client *redis.Client, ttl time.Duration) *LevelCache {
	return &LevelCache{client: client, ttl: ttl}
}

func levelKey(tenantID, itemID, locationID int64) string {
	return fmt.Sprintf("stock:level:%d:%d:%d", tenantID, itemID, locationID)
}

// Fetch loads a cached level or populates it using the loader.
func (c *LevelCache) Fetch(ctx context.Context, tenantID, itemID, locationID int64, loader func(context.Context) (Level, error)) (Level, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := levelKey(tenantID, itemID, locationID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var level Level
		if jsonErr := json.Unmarshal(raw, &level); jsonErr == nil {
			return level, nil
		}
		// Corrupt entry, fall through to the loader.
	} else if err != redis.Nil {
		return loader(ctx)
	}
	// Collapse concurrent misses on the same key into one load.
	v, err, _ := c.group.Do(key, func() (any, error) {
		level, err := loader(ctx)
		if err != nil {
			return Level{}, err
		}
		if encoded, err := json.Marshal(level); err == nil {
			_ = c.client.Set(ctx, key, encoded, c.ttl).Err()
		}
		return level, nil
	})
	if err != nil {
		return Level{}, err
	}
	return v.(Level), nil
}

// Invalidate drops the cached entry for one level row.
func (c *LevelCache) Invalidate(ctx context.Context, tenantID, itemID, locationID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, levelKey(tenantID, itemID, locationID)).Err()
}
