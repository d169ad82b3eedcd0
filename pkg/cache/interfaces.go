package cache

import (
	"context"
	"time"
)

// Cache 定义了缓存行为的接口。
// 预热引擎对底层存储保持不可知：本地内存（LRUCache）与远程
// Redis（RedisCache）都实现此接口。
type Cache interface {
	// Get 从缓存中获取一个值。条目不存在或已过期时返回
	// 代码为 CACHE_MISS 的错误。
	Get(ctx context.Context, key string) (interface{}, error)

	// Set 向缓存中设置一个值，可以指定TTL（生存时间）。
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete 从缓存中删除一个值。
	Delete(ctx context.Context, key string) error

	// Clear 清空所有缓存条目。
	Clear(ctx context.Context) error

	// Len 返回当前存活条目数。
	Len() int

	// Stats 获取缓存的统计信息。
	Stats() CacheStats
}

// CacheEntry 代表缓存中的一个条目。
type CacheEntry struct {
	Key        string      // 缓存键
	Value      interface{} // 缓存的值
	InsertedAt time.Time   // 写入时间
	ExpiresAt  time.Time   // 过期时间 (InsertedAt + TTL)
}

// Expired 判断条目在给定时刻是否已过期
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// CacheStats 包含了缓存的详细统计信息。
type CacheStats struct {
	Size        int64     `json:"size"`         // 当前缓存中的条目数
	MaxSize     int64     `json:"max_size"`     // 缓存最大容量
	HitCount    int64     `json:"hit_count"`    // 命中次数
	MissCount   int64     `json:"miss_count"`   // 未命中次数
	HitRate     float64   `json:"hit_rate"`     // 命中率
	Evictions   int64     `json:"evictions"`    // LRU 淘汰次数
	Expirations int64     `json:"expirations"`  // TTL 过期淘汰次数
	LastCleanup time.Time `json:"last_cleanup"` // 最后一次清理过期条目的时间
}
