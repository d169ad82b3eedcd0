package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// LRUCacheConfig 内存缓存配置
type LRUCacheConfig struct {
	MaxEntries      int           `yaml:"max_entries"`      // 最大条目数量
	DefaultTTL      time.Duration `yaml:"default_ttl"`      // 默认TTL
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // 过期清理间隔，0 表示不启动清理协程
}

// LRUCache 线程安全的有界内存缓存，按 LRU 淘汰并支持 TTL 过期。
//
// 哈希表提供 O(1) 查找，双向链表维护访问顺序（链表头为最近使用）。
// 所有操作只在内部互斥锁内做一次 map/链表变更，不做任何 IO。
type LRUCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // 链表元素的 Value 为 *CacheEntry

	maxEntries  int
	defaultTTL  time.Duration
	hitCount    int64
	missCount   int64
	evictions   int64
	expirations int64

	// 清理相关
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	lastCleanup   time.Time
	closed        bool
}

// NewLRUCache 创建新的内存缓存
func NewLRUCache(config LRUCacheConfig) *LRUCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}

	c := &LRUCache{
		entries:     make(map[string]*list.Element),
		order:       list.New(),
		maxEntries:  config.MaxEntries,
		defaultTTL:  config.DefaultTTL,
		stopCleanup: make(chan struct{}),
		lastCleanup: time.Now(),
	}

	// 启动清理协程
	if config.CleanupInterval > 0 {
		c.cleanupTicker = time.NewTicker(config.CleanupInterval)
		go c.startCleanup()
	}

	return c
}

// Get 获取缓存值。过期条目在读取时被移除并计为一次 TTL 淘汰。
func (c *LRUCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		c.missCount++
		return nil, NewCacheError(ErrCacheMiss, "cache miss")
	}

	entry := elem.Value.(*CacheEntry)
	if entry.Expired(time.Now()) {
		c.removeElement(elem)
		c.expirations++
		c.missCount++
		return nil, NewCacheError(ErrCacheMiss, "cache expired")
	}

	// 标记为最近使用
	c.order.MoveToFront(elem)
	c.hitCount++

	return entry.Value, nil
}

// Set 设置缓存值。已存在的键只更新值和过期时间并标记为最近使用；
// 新键在达到容量时先淘汰最久未使用的一个条目。
func (c *LRUCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		entry := elem.Value.(*CacheEntry)
		entry.Value = value
		entry.InsertedAt = now
		entry.ExpiresAt = now.Add(ttl)
		c.order.MoveToFront(elem)
		return nil
	}

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	entry := &CacheEntry{
		Key:        key,
		Value:      value,
		InsertedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	c.entries[key] = c.order.PushFront(entry)

	return nil
}

// Delete 删除缓存值
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.removeElement(elem)
	}
	return nil
}

// Clear 清空缓存
func (c *LRUCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.hitCount = 0
	c.missCount = 0
	c.evictions = 0
	c.expirations = 0
	return nil
}

// Len 返回当前存活条目数
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats 获取缓存统计信息
func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if total := c.hitCount + c.missCount; total > 0 {
		hitRate = float64(c.hitCount) / float64(total)
	}

	return CacheStats{
		Size:        int64(len(c.entries)),
		MaxSize:     int64(c.maxEntries),
		HitCount:    c.hitCount,
		MissCount:   c.missCount,
		HitRate:     hitRate,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		LastCleanup: c.lastCleanup,
	}
}

// Close 关闭缓存，停止清理协程
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.cleanupTicker != nil {
		c.cleanupTicker.Stop()
	}
	close(c.stopCleanup)
	return nil
}

// startCleanup 启动清理协程
func (c *LRUCache) startCleanup() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup 清理过期条目
func (c *LRUCache) cleanup() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*list.Element
	for _, elem := range c.entries {
		if elem.Value.(*CacheEntry).Expired(now) {
			expired = append(expired, elem)
		}
	}

	for _, elem := range expired {
		c.removeElement(elem)
		c.expirations++
	}
	c.lastCleanup = now
}

// evictOldest 淘汰最久未使用的条目（调用方需持有锁）
func (c *LRUCache) evictOldest() {
	elem := c.order.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	c.evictions++
}

// removeElement 从哈希表和链表中移除条目（调用方需持有锁）
func (c *LRUCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*CacheEntry)
	c.order.Remove(elem)
	delete(c.entries, entry.Key)
}

var _ Cache = (*LRUCache)(nil)
