package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCacheConfig Redis 缓存配置
type RedisCacheConfig struct {
	Addr       string        `yaml:"addr"`        // 服务器地址 host:port
	Password   string        `yaml:"password"`    // 密码
	DB         int           `yaml:"db"`          // 数据库编号
	DefaultTTL time.Duration `yaml:"default_ttl"` // 默认生存时间
	KeyPrefix  string        `yaml:"key_prefix"`  // 键前缀，用于和其他业务共用实例时隔离
}

// RedisCache 基于 Redis 的远程缓存实现。
// 值以 JSON 编码存储，TTL 由 Redis 本身维护，容量和淘汰交给服务端策略。
type RedisCache struct {
	mu     sync.Mutex
	client *redis.Client
	config RedisCacheConfig

	hitCount  int64
	missCount int64
}

// NewRedisCache 创建 Redis 缓存
func NewRedisCache(config RedisCacheConfig) *RedisCache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisCache{
		client: client,
		config: config,
	}
}

// Ping 检查连接状态
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Get 从 Redis 获取数据
func (rc *RedisCache) Get(ctx context.Context, key string) (interface{}, error) {
	raw, err := rc.client.Get(ctx, rc.config.KeyPrefix+key).Result()
	if err == redis.Nil {
		rc.recordAccess(false)
		return nil, NewCacheError(ErrCacheMiss, "cache miss")
	}
	if err != nil {
		rc.recordAccess(false)
		return nil, WrapCacheError(ErrCacheBackend, "redis get failed", err)
	}

	var value interface{}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, WrapCacheError(ErrCacheEncoding, "decode cached value failed", err)
	}

	rc.recordAccess(true)
	return value, nil
}

// Set 向 Redis 设置数据
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = rc.config.DefaultTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return WrapCacheError(ErrCacheEncoding, "encode value failed", err)
	}

	if err := rc.client.Set(ctx, rc.config.KeyPrefix+key, raw, ttl).Err(); err != nil {
		return WrapCacheError(ErrCacheBackend, "redis set failed", err)
	}
	return nil
}

// Delete 从 Redis 删除数据
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.config.KeyPrefix+key).Err(); err != nil {
		return WrapCacheError(ErrCacheBackend, "redis del failed", err)
	}
	return nil
}

// Clear 清空当前 DB
func (rc *RedisCache) Clear(ctx context.Context) error {
	if err := rc.client.FlushDB(ctx).Err(); err != nil {
		return WrapCacheError(ErrCacheBackend, "redis flushdb failed", err)
	}

	rc.mu.Lock()
	rc.hitCount = 0
	rc.missCount = 0
	rc.mu.Unlock()
	return nil
}

// Len 返回当前 DB 的键数量，查询失败时返回 0
func (rc *RedisCache) Len() int {
	n, err := rc.client.DBSize(context.Background()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// Stats 获取客户端侧统计信息。
// Evictions/Expirations 由 Redis 服务端维护，这里不重复统计。
// DBSIZE 是一次网络往返，放在锁外执行，避免阻塞并发的读写计数。
func (rc *RedisCache) Stats() CacheStats {
	rc.mu.Lock()
	hits, misses := rc.hitCount, rc.missCount
	rc.mu.Unlock()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Size:      int64(rc.Len()),
		HitCount:  hits,
		MissCount: misses,
		HitRate:   hitRate,
	}
}

// Close 关闭连接
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

func (rc *RedisCache) recordAccess(hit bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if hit {
		rc.hitCount++
	} else {
		rc.missCount++
	}
}

var _ Cache = (*RedisCache)(nil)
