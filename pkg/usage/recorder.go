package usage

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// UsageDataPoint 一次缓存访问的观测记录。记录后不可变。
type UsageDataPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	CacheKey       string    `json:"cache_key"`
	HitCount       int       `json:"hit_count"`
	MissCount      int       `json:"miss_count"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	EntityID       string    `json:"entity_id,omitempty"` // 触发访问的实体（如线索）ID，可为空
}

// RecorderConfig 访问记录器配置
type RecorderConfig struct {
	MaxPointsPerPattern int           `yaml:"max_points_per_pattern"` // 每个键模式保留的最大数据点数
	Retention           time.Duration `yaml:"retention"`              // 数据点最大保留时长
}

// Recorder 按键模式累积缓存访问历史，供模式分析器读取。
//
// 写入只做一次内存追加；超出保留策略（条数或时长，先到先触发）
// 时丢弃最旧的数据点。读取返回副本，分析器迭代期间新的写入不受影响。
type Recorder struct {
	mu        sync.RWMutex
	histories map[string][]UsageDataPoint // 键模式 -> 数据点（按时间递增）
	totals    map[string]int64            // 键模式 -> 累计访问次数

	maxPoints int
	retention time.Duration
}

// NewRecorder 创建访问记录器
func NewRecorder(config RecorderConfig) *Recorder {
	if config.MaxPointsPerPattern <= 0 {
		config.MaxPointsPerPattern = 10000
	}
	if config.Retention <= 0 {
		config.Retention = 30 * 24 * time.Hour
	}

	return &Recorder{
		histories: make(map[string][]UsageDataPoint),
		totals:    make(map[string]int64),
		maxPoints: config.MaxPointsPerPattern,
		retention: config.Retention,
	}
}

// RecordAccess 记录一次缓存访问。entityID 没有时传空字符串。
func (r *Recorder) RecordAccess(key string, hit bool, latencyMs float64, entityID string) {
	r.RecordAccessAt(time.Now(), key, hit, latencyMs, entityID)
}

// RecordAccessAt 以指定时间戳记录一次缓存访问，供回放历史数据和测试使用。
func (r *Recorder) RecordAccessAt(at time.Time, key string, hit bool, latencyMs float64, entityID string) {
	point := UsageDataPoint{
		Timestamp:      at,
		CacheKey:       key,
		ResponseTimeMs: latencyMs,
		EntityID:       entityID,
	}
	if hit {
		point.HitCount = 1
	} else {
		point.MissCount = 1
	}

	pattern := KeyPattern(key)

	r.mu.Lock()
	defer r.mu.Unlock()

	points := append(r.histories[pattern], point)

	// 条数上限：丢弃最旧的数据点
	if len(points) > r.maxPoints {
		points = points[len(points)-r.maxPoints:]
	}

	// 时长上限：最旧的点超期时裁剪一次
	cutoff := at.Add(-r.retention)
	if len(points) > 0 && points[0].Timestamp.Before(cutoff) {
		idx := sort.Search(len(points), func(i int) bool {
			return !points[i].Timestamp.Before(cutoff)
		})
		points = points[idx:]
	}

	r.histories[pattern] = points
	r.totals[pattern]++
}

// History 返回指定键模式的数据点快照，可安全迭代。
func (r *Recorder) History(pattern string) []UsageDataPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	points := r.histories[pattern]
	snapshot := make([]UsageDataPoint, len(points))
	copy(snapshot, points)
	return snapshot
}

// TopPatterns 返回累计访问次数最多的 n 个键模式，按次数降序。
func (r *Recorder) TopPatterns(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patterns := make([]string, 0, len(r.totals))
	for pattern := range r.totals {
		patterns = append(patterns, pattern)
	}

	sort.Slice(patterns, func(i, j int) bool {
		if r.totals[patterns[i]] != r.totals[patterns[j]] {
			return r.totals[patterns[i]] > r.totals[patterns[j]]
		}
		return patterns[i] < patterns[j]
	})

	if n > 0 && len(patterns) > n {
		patterns = patterns[:n]
	}
	return patterns
}

// RecentKeys 返回键模式下最近访问过的去重缓存键，最新的在前。
func (r *Recorder) RecentKeys(pattern string, n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	points := r.histories[pattern]
	seen := make(map[string]struct{})
	keys := make([]string, 0, n)

	for i := len(points) - 1; i >= 0; i-- {
		key := points[i].CacheKey
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		if n > 0 && len(keys) >= n {
			break
		}
	}
	return keys
}

// PatternCount 返回已观测到的键模式数量
func (r *Recorder) PatternCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.histories)
}

// TotalAccesses 返回指定键模式的累计访问次数
func (r *Recorder) TotalAccesses(pattern string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals[pattern]
}

// KeyPattern 把具体缓存键归一化为键模式。
// 约定键格式为 "<类别>:<标识>"，如 "lead_scores:42" -> "lead_scores:*"；
// 不含冒号的键自成一类。
func KeyPattern(key string) string {
	if idx := strings.Index(key, ":"); idx >= 0 {
		return key[:idx] + ":*"
	}
	return key
}

// MatchesPattern 判断缓存键是否属于某个键模式
func MatchesPattern(key, pattern string) bool {
	return KeyPattern(key) == pattern
}
