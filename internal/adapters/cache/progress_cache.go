package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

var _ domain.ProgressCache = (*ProgressCache)(nil)

const DefaultProgressTTL = 5 * time.Minute

// ProgressCache stores goal progress snapshots in Redis under
// progress:<user>:<goal>. Redis errors are logged and reported as misses.
type ProgressCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewProgressCache(rdb *redis.Client, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = DefaultProgressTTL
	}
	return &ProgressCache{rdb: rdb, ttl: ttl}
}

func progressKey(userID, goalID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, goalID)
}

func (c *ProgressCache) Get(ctx context.Context, userID, goalID string) (*domain.Progress, bool) {
	key := progressKey(userID, goalID)

	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("cache read failed", "key", key, "err", err)
		}
		return nil, false
	}

	var p domain.Progress
	if err := json.Unmarshal(val, &p); err != nil {
		logger.Warn("corrupted cache entry, dropping", "key", key, "err", err)
		c.rdb.Del(ctx, key)
		return nil, false
	}
	return &p, true
}

func (c *ProgressCache) Set(ctx context.Context, userID string, p *domain.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	key := progressKey(userID, p.GoalID)
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("cache write failed", "key", key, "err", err)
	}
}

func (c *ProgressCache) Invalidate(ctx context.Context, userID string, goalIDs ...string) {
	if len(goalIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(goalIDs))
	for _, id := range goalIDs {
		keys = append(keys, progressKey(userID, id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("cache invalidation failed", "user_id", userID, "keys", len(keys), "err", err)
	}
}

func (c *ProgressCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
