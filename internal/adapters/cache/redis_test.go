package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setupRedis(t *testing.T) *redis.Client {
	_ = godotenv.Load("../../../.env")

	rdb, err := NewRedisClient(context.Background(), RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       1,
	})
	if err != nil {
		t.Skipf("Skipping Redis integration test: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })

	require.NoError(t, rdb.FlushDB(context.Background()).Err(), "Failed to flush test DB")
	return rdb
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "cache:6380", RedisConfig{Host: "cache", Port: "6380"}.Addr())
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{Host: "127.0.0.1", Port: "1"})
	assert.Error(t, err)
}

func TestProgressCache_Integration(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()
	c := NewProgressCache(rdb, time.Minute)

	t.Run("Miss then hit", func(t *testing.T) {
		_, ok := c.Get(ctx, "u1", "g1")
		assert.False(t, ok)

		c.Set(ctx, "u1", &domain.Progress{GoalID: "g1", Percent: 62, HabitBased: 40, ManualOffset: 22})

		got, ok := c.Get(ctx, "u1", "g1")
		require.True(t, ok)
		assert.InDelta(t, 62, got.Percent, 0.0001)
		assert.InDelta(t, 22, got.ManualOffset, 0.0001)
	})

	t.Run("Keys are scoped per user", func(t *testing.T) {
		_, ok := c.Get(ctx, "u2", "g1")
		assert.False(t, ok)
	})

	t.Run("Invalidate removes several goals", func(t *testing.T) {
		c.Set(ctx, "u1", &domain.Progress{GoalID: "g2", Percent: 10})
		c.Invalidate(ctx, "u1", "g1", "g2", "never-cached")

		_, ok := c.Get(ctx, "u1", "g1")
		assert.False(t, ok)
		_, ok = c.Get(ctx, "u1", "g2")
		assert.False(t, ok)
	})

	t.Run("Corrupted entry is dropped", func(t *testing.T) {
		require.NoError(t, rdb.Set(ctx, progressKey("u1", "bad"), "{not json", time.Minute).Err())

		_, ok := c.Get(ctx, "u1", "bad")
		assert.False(t, ok)

		_, err := rdb.Get(ctx, progressKey("u1", "bad")).Result()
		assert.ErrorIs(t, err, redis.Nil)
	})

	t.Run("Entries expire", func(t *testing.T) {
		short := NewProgressCache(rdb, time.Second)
		short.Set(ctx, "u1", &domain.Progress{GoalID: "g3", Percent: 5})

		time.Sleep(1100 * time.Millisecond)

		_, ok := short.Get(ctx, "u1", "g3")
		assert.False(t, ok)
	})

	t.Run("Concurrent access", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				goalID := "concurrent-" + string(rune('a'+id))
				c.Set(ctx, "u1", &domain.Progress{GoalID: goalID, Percent: float64(id)})
				_, ok := c.Get(ctx, "u1", goalID)
				assert.True(t, ok)
			}(i)
		}
		wg.Wait()
	})
}

func TestProgressCache_DegradesWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	c := NewProgressCache(rdb, 0)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Set(ctx, "u1", &domain.Progress{GoalID: "g1"})
		c.Invalidate(ctx, "u1", "g1")
	})
	_, ok := c.Get(ctx, "u1", "g1")
	assert.False(t, ok)
	assert.Error(t, c.Ping(ctx))
}
