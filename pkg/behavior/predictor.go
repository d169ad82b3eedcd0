package behavior

import (
	"sort"
	"sync"
	"time"
)

// ActivityRecord 实体的一次业务行为观测
type ActivityRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	EntityID     string    `json:"entity_id"`     // 行为主体（如线索/联系人）ID
	ActivityType string    `json:"activity_type"` // 行为类型，如 property_view、email_open
	CacheKeys    []string  `json:"cache_keys"`    // 该行为随后实际访问的缓存键
}

// PredictorConfig 行为预测器配置
type PredictorConfig struct {
	MaxRecordsPerEntity int           `yaml:"max_records_per_entity"` // 每个实体保留的最大行为记录数
	Retention           time.Duration `yaml:"retention"`              // 行为记录最大保留时长
	MaxTransitions      int           `yaml:"max_transitions"`        // 转移索引的最大条目数
	MaxKeysPerState     int           `yaml:"max_keys_per_state"`     // 每个转移状态保留的缓存键数量上限
}

// transitionKey 最近两次行为类型组成的状态
type transitionKey struct {
	prev2 string
	prev1 string
}

// keyStats 某个转移状态后观测到的缓存键及其出现次数
type keyStats struct {
	counts   map[string]int
	lastSeen time.Time
}

// Predictor 基于行为序列预测实体接下来会访问的缓存键。
//
// 每个实体维护一条有界的行为日志；同时所有实体的 (前两次行为) -> 后续
// 访问键 转移共享一个有界索引。索引在 RecordActivity 时增量更新，
// 预测只读取调用方自己的日志和共享索引，不遍历其他实体的历史。
type Predictor struct {
	mu     sync.RWMutex
	config PredictorConfig

	logs        map[string][]ActivityRecord // 实体ID -> 行为日志（按时间递增）
	transitions map[transitionKey]*keyStats // 转移状态 -> 后续键统计
}

// NewPredictor 创建行为预测器
func NewPredictor(config PredictorConfig) *Predictor {
	if config.MaxRecordsPerEntity <= 0 {
		config.MaxRecordsPerEntity = 200
	}
	if config.Retention <= 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	if config.MaxTransitions <= 0 {
		config.MaxTransitions = 10000
	}
	if config.MaxKeysPerState <= 0 {
		config.MaxKeysPerState = 20
	}

	return &Predictor{
		config:      config,
		logs:        make(map[string][]ActivityRecord),
		transitions: make(map[transitionKey]*keyStats),
	}
}

// RecordActivity 记录一次实体行为并更新转移索引。
// 只有在该实体此前至少有两条记录时才产生一条新的转移样本。
func (p *Predictor) RecordActivity(record ActivityRecord) {
	p.RecordActivityAt(time.Now(), record)
}

// RecordActivityAt 以指定时间戳记录行为，供回放和测试使用。
// record.Timestamp 为零值时使用 at。
func (p *Predictor) RecordActivityAt(at time.Time, record ActivityRecord) {
	if record.EntityID == "" || record.ActivityType == "" {
		return
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = at
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.logs[record.EntityID]

	// 有前两次行为时，学习 (prev2, prev1) -> 本次访问键 的转移
	if n := len(log); n >= 2 && len(record.CacheKeys) > 0 {
		state := transitionKey{
			prev2: log[n-2].ActivityType,
			prev1: log[n-1].ActivityType,
		}
		p.learn(state, record.CacheKeys, record.Timestamp)
	}

	log = append(log, record)

	// 条数上限：丢弃最旧的记录
	if len(log) > p.config.MaxRecordsPerEntity {
		log = log[len(log)-p.config.MaxRecordsPerEntity:]
	}

	// 时长上限
	cutoff := record.Timestamp.Add(-p.config.Retention)
	if len(log) > 0 && log[0].Timestamp.Before(cutoff) {
		idx := sort.Search(len(log), func(i int) bool {
			return !log[i].Timestamp.Before(cutoff)
		})
		log = log[idx:]
	}

	p.logs[record.EntityID] = log
}

// PredictNextKeys 预测实体接下来可能访问的缓存键，按观测频次降序。
// 该实体不足两条行为记录、或对应转移状态未被观测过时返回 nil。
func (p *Predictor) PredictNextKeys(entityID string, limit int) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	log := p.logs[entityID]
	n := len(log)
	if n < 2 {
		return nil
	}

	state := transitionKey{
		prev2: log[n-2].ActivityType,
		prev1: log[n-1].ActivityType,
	}
	stats, exists := p.transitions[state]
	if !exists {
		return nil
	}

	keys := make([]string, 0, len(stats.counts))
	for key := range stats.counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if stats.counts[keys[i]] != stats.counts[keys[j]] {
			return stats.counts[keys[i]] > stats.counts[keys[j]]
		}
		return keys[i] < keys[j]
	})

	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

// EntitiesTracked 返回当前持有行为日志的实体数量
func (p *Predictor) EntitiesTracked() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.logs)
}

// TransitionCount 返回转移索引的条目数量
func (p *Predictor) TransitionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.transitions)
}

// learn 更新转移索引（调用方需持有写锁）
func (p *Predictor) learn(state transitionKey, cacheKeys []string, at time.Time) {
	stats, exists := p.transitions[state]
	if !exists {
		if len(p.transitions) >= p.config.MaxTransitions {
			p.evictStalestTransition()
		}
		stats = &keyStats{counts: make(map[string]int)}
		p.transitions[state] = stats
	}

	for _, key := range cacheKeys {
		stats.counts[key]++
	}
	stats.lastSeen = at

	// 键数量超限时丢弃观测次数最少的
	for len(stats.counts) > p.config.MaxKeysPerState {
		coldest, coldestCount := "", int(^uint(0)>>1)
		for key, count := range stats.counts {
			if count < coldestCount || (count == coldestCount && key < coldest) {
				coldest, coldestCount = key, count
			}
		}
		delete(stats.counts, coldest)
	}
}

// evictStalestTransition 淘汰最久未更新的转移状态（调用方需持有写锁）
func (p *Predictor) evictStalestTransition() {
	var stalest transitionKey
	var stalestAt time.Time
	first := true

	for state, stats := range p.transitions {
		if first || stats.lastSeen.Before(stalestAt) {
			stalest, stalestAt = state, stats.lastSeen
			first = false
		}
	}
	if !first {
		delete(p.transitions, stalest)
	}
}
