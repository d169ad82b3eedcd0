package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(maxEntries int, ttl time.Duration) *LRUCache {
	return NewLRUCache(LRUCacheConfig{
		MaxEntries: maxEntries,
		DefaultTTL: ttl,
	})
}

func TestLRUCache_SetGet(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	err := c.Set(ctx, "lead_scores:1", 88.5, 0)
	require.NoError(t, err)

	value, err := c.Get(ctx, "lead_scores:1")
	require.NoError(t, err)
	assert.Equal(t, 88.5, value)
}

func TestLRUCache_Miss(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	_, err := c.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsMiss(err))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.MissCount)
	assert.Equal(t, int64(0), stats.HitCount)
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	err := c.Set(ctx, "key", "value", 10*time.Millisecond)
	require.NoError(t, err)

	// 未过期时命中
	_, err = c.Get(ctx, "key")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// 过期后读取计为 TTL 淘汰，不计为 LRU 淘汰
	_, err = c.Get(ctx, "key")
	require.Error(t, err)
	assert.True(t, IsMiss(err))

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Expirations)
	assert.Equal(t, int64(0), stats.Evictions)
	assert.Equal(t, 0, c.Len())
}

func TestLRUCache_EvictOldest(t *testing.T) {
	c := newTestCache(3, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))
	require.NoError(t, c.Set(ctx, "c", 3, 0))

	// 访问 a，使 b 成为最久未使用
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "d", 4, 0))

	assert.Equal(t, 3, c.Len())

	_, err = c.Get(ctx, "b")
	assert.True(t, IsMiss(err), "最久未使用的条目应被淘汰")

	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newTestCache(2, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", 1, 0))
	require.NoError(t, c.Set(ctx, "b", 2, 0))

	// 更新已有键不应触发淘汰
	require.NoError(t, c.Set(ctx, "a", 10, 0))

	assert.Equal(t, 2, c.Len())

	value, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 10, value)

	_, err = c.Get(ctx, "b")
	assert.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Evictions)
}

func TestLRUCache_Delete(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", "value", 0))
	require.NoError(t, c.Delete(ctx, "key"))

	_, err := c.Get(ctx, "key")
	assert.True(t, IsMiss(err))

	// 删除不存在的键不报错
	assert.NoError(t, c.Delete(ctx, "missing"))
}

func TestLRUCache_Clear(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("key-%d", i), i, 0))
	}
	require.NoError(t, c.Clear(ctx))

	assert.Equal(t, 0, c.Len())
	stats := c.Stats()
	assert.Equal(t, int64(0), stats.HitCount)
	assert.Equal(t, int64(0), stats.MissCount)
}

func TestLRUCache_Stats(t *testing.T) {
	c := newTestCache(10, time.Minute)
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", "value", 0))

	_, _ = c.Get(ctx, "key")
	_, _ = c.Get(ctx, "key")
	_, _ = c.Get(ctx, "missing")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)
	assert.Equal(t, int64(1), stats.Size)
	assert.Equal(t, int64(10), stats.MaxSize)
}

func TestLRUCache_CleanupLoop(t *testing.T) {
	c := NewLRUCache(LRUCacheConfig{
		MaxEntries:      10,
		DefaultTTL:      10 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	})
	defer c.Close()

	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key", "value", 0))

	assert.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond, "清理协程应移除过期条目")
}

func TestLRUCache_ConcurrentAccess(t *testing.T) {
	c := newTestCache(100, time.Minute)
	defer c.Close()

	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j%20)
				_ = c.Set(ctx, key, j, 0)
				_, _ = c.Get(ctx, key)
			}
		}(i)
	}

	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 100)
}

func TestLRUCache_CloseIdempotent(t *testing.T) {
	c := newTestCache(10, time.Minute)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
