package stock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache keeps short-lived balance snapshots in Redis for advisory
// reads. Staleness is acceptable here; the posting path always re-reads
// balances under row locks.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache constructs the cache.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(key BalanceKey) string {
	return fmt.Sprintf("stock:balance:%d:%d", key.ItemID, key.WarehouseID)
}

// Get returns the cached quantity and whether it was present.
func (c *SnapshotCache) Get(ctx context.Context, key BalanceKey) (int64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	val, err := c.client.Get(ctx, snapshotKey(key)).Result()
	if err != nil {
		return 0, false
	}
	qty, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return qty, true
}

// Set stores a snapshot with the configured TTL.
func (c *SnapshotCache) Set(ctx context.Context, key BalanceKey, qty int64) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Set(ctx, snapshotKey(key), strconv.FormatInt(qty, 10), c.ttl).Err()
}

// Invalidate drops snapshots after a committed posting touched their pairs.
func (c *SnapshotCache) Invalidate(ctx context.Context, keys ...BalanceKey) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = snapshotKey(k)
	}
	_ = c.client.Del(ctx, names...).Err()
}
