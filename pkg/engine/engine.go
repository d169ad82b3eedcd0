package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/behavior"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/cache"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/config"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/loader"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/pattern"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/usage"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/warming"
)

// WarmingStats 引擎整体运行统计
type WarmingStats struct {
	QueueSize       int   `json:"queue_size"`
	InFlight        int   `json:"in_flight"`
	TotalWarmed     int64 `json:"total_warmed"`
	Completed       int64 `json:"completed"`
	Failed          int64 `json:"failed"`
	Dropped         int64 `json:"dropped"`
	Deduped         int64 `json:"deduped"`
	PatternsLearned int   `json:"patterns_learned"`
	EntitiesTracked int   `json:"entities_tracked"`
}

// Engine 预测性缓存预热引擎。
//
// 组合缓存层、访问记录器、模式分析器、行为预测器和预热调度执行链，
// 对外提供带观测的缓存读写入口和行为上报入口。所有组件由引擎实例
// 持有，没有包级全局状态。
type Engine struct {
	config    *config.Config
	cache     cache.Cache
	recorder  *usage.Recorder
	analyzer  *pattern.Analyzer
	predictor *behavior.Predictor
	registry  *loader.Registry
	queue     *warming.TaskQueue
	generator *warming.Generator
	executor  *warming.Executor
	log       *logrus.Entry

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	cancel  context.CancelFunc
}

// New 创建预热引擎。cfg 为 nil 时使用默认配置；
// c 为 nil 时按配置创建缓存后端。
func New(cfg *config.Config, c cache.Cache) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if c == nil {
		var err error
		c, err = buildCache(cfg)
		if err != nil {
			return nil, err
		}
	}

	recorder := usage.NewRecorder(usage.RecorderConfig{
		MaxPointsPerPattern: cfg.Usage.MaxPointsPerPattern,
		Retention:           cfg.Usage.Retention,
	})

	analyzer := pattern.NewAnalyzer(recorder, pattern.NewLeastSquaresForecaster(), pattern.AnalyzerConfig{
		MinBucketPoints:  cfg.Pattern.MinBucketPoints,
		MinFitPoints:     cfg.Pattern.MinFitPoints,
		TopPatterns:      cfg.Pattern.TopPatterns,
		TopKeysPerBucket: cfg.Pattern.TopKeysPerBucket,
	})

	predictor := behavior.NewPredictor(behavior.PredictorConfig{
		MaxRecordsPerEntity: cfg.Behavior.MaxRecordsPerEntity,
		Retention:           cfg.Behavior.Window,
		MaxTransitions:      cfg.Behavior.MaxTransitions,
		MaxKeysPerState:     cfg.Behavior.MaxKeysPerSuffix,
	})

	registry := loader.NewRegistry()
	queue := warming.NewTaskQueue(cfg.Warming.QueueCapacity)

	generator := warming.NewGenerator(analyzer, predictor, recorder, queue, warming.GeneratorConfig{
		MinConfidence:    cfg.Warming.MinConfidence,
		MinIntensity:     cfg.Warming.MinIntensity,
		OffsetStart:      cfg.Warming.OffsetStart,
		OffsetEnd:        cfg.Warming.OffsetEnd,
		OffsetStep:       cfg.Warming.OffsetStep,
		KeysPerPattern:   cfg.Warming.KeysPerPattern,
		BehaviorLeadTime: cfg.Warming.BehaviorLeadTime,
		CriticalPatterns: cfg.Warming.CriticalPatterns,
	})

	executor := warming.NewExecutor(queue, c, registry, warming.ExecutorConfig{
		Concurrency:     cfg.Warming.Concurrency,
		ExecutionWindow: cfg.Warming.ExecutionWindow,
		WarmTTLHigh:     cfg.Warming.WarmTTLHigh,
		WarmTTLLow:      cfg.Warming.WarmTTLLow,
		LoadTimeout:     cfg.Warming.LoadTimeout,
	})

	return &Engine{
		config:    cfg,
		cache:     c,
		recorder:  recorder,
		analyzer:  analyzer,
		predictor: predictor,
		registry:  registry,
		queue:     queue,
		generator: generator,
		executor:  executor,
		log:       logger.WithComponent("warming-engine"),
	}, nil
}

// buildCache 按配置创建缓存后端
func buildCache(cfg *config.Config) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewLRUCache(cache.LRUCacheConfig{
			MaxEntries:      cfg.Cache.MaxEntries,
			DefaultTTL:      cfg.Cache.DefaultTTL,
			CleanupInterval: cfg.Cache.CleanupInterval,
		}), nil
	case "redis":
		return cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			DefaultTTL: cfg.Cache.DefaultTTL,
		}), nil
	default:
		return nil, fmt.Errorf("未知的缓存后端: %s", cfg.Cache.Backend)
	}
}

// RegisterLoader 注册某个数据类别的加载器
func (e *Engine) RegisterLoader(kind string, l loader.Loader) {
	e.registry.Register(kind, l)
}

// Lookup 读取缓存并记录本次访问。
// entityID 用于关联行为预测，没有时传空字符串。
func (e *Engine) Lookup(ctx context.Context, key, entityID string) (interface{}, error) {
	start := time.Now()
	value, err := e.cache.Get(ctx, key)
	latency := float64(time.Since(start).Microseconds()) / 1000

	e.recorder.RecordAccess(key, err == nil, latency, entityID)
	return value, err
}

// Put 写入缓存。ttl 为 0 时使用缓存后端的默认 TTL。
func (e *Engine) Put(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return e.cache.Set(ctx, key, value, ttl)
}

// Invalidate 删除缓存条目
func (e *Engine) Invalidate(ctx context.Context, key string) error {
	return e.cache.Delete(ctx, key)
}

// RecordActivity 上报实体行为，并即刻为预测出的后续访问生成预热任务
func (e *Engine) RecordActivity(record behavior.ActivityRecord) {
	e.predictor.RecordActivity(record)
	e.generator.EnqueueBehaviorTasks(record.EntityID, time.Now())
}

// Analyze 立即执行一轮模式分析
func (e *Engine) Analyze() pattern.AnalysisResult {
	return e.analyzer.Analyze(time.Now())
}

// GenerateTasks 立即执行一轮任务生成
func (e *Engine) GenerateTasks() int {
	return e.generator.GenerateTasks(time.Now())
}

// DispatchOnce 立即执行一轮预热调度
func (e *Engine) DispatchOnce(ctx context.Context) {
	e.executor.DispatchOnce(ctx, time.Now())
}

// StartWarming 启动预热后台循环：模式分析、任务生成、执行调度
// 各按配置的周期运行。重复调用无效果。
func (e *Engine) StartWarming() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.cron = cron.New(cron.WithSeconds())

	entries := []struct {
		spec string
		name string
		run  func()
	}{
		{
			spec: fmt.Sprintf("@every %s", e.config.Warming.AnalyzeInterval),
			name: "analyze",
			run:  func() { e.analyzer.Analyze(time.Now()) },
		},
		{
			spec: fmt.Sprintf("@every %s", e.config.Warming.GenerateInterval),
			name: "generate",
			run:  func() { e.generator.GenerateTasks(time.Now()) },
		},
		{
			spec: fmt.Sprintf("@every %s", e.config.Warming.DispatchInterval),
			name: "dispatch",
			run:  func() { e.executor.DispatchOnce(ctx, time.Now()) },
		},
	}

	for _, entry := range entries {
		entry := entry
		_, err := e.cron.AddFunc(entry.spec, func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Errorf("预热循环 %s 发生 panic: %v", entry.name, r)
				}
			}()
			entry.run()
		})
		if err != nil {
			cancel()
			return fmt.Errorf("注册预热循环 %s 失败: %w", entry.name, err)
		}
	}

	e.cron.Start()
	e.running = true
	e.log.Info("缓存预热引擎已启动")
	return nil
}

// StopWarming 停止预热后台循环，等待执行中的任务结束
func (e *Engine) StopWarming() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.cancel()
	stopCtx := e.cron.Stop()

	select {
	case <-stopCtx.Done():
		e.log.Info("缓存预热引擎已停止")
	case <-time.After(30 * time.Second):
		e.log.Warn("缓存预热引擎停止超时")
	}

	e.running = false
}

// Close 停止预热循环并关闭缓存后端
func (e *Engine) Close() error {
	e.StopWarming()

	type closer interface {
		Close() error
	}
	if c, ok := e.cache.(closer); ok {
		return c.Close()
	}
	return nil
}

// GetWarmingStats 获取引擎整体运行统计
func (e *Engine) GetWarmingStats() WarmingStats {
	execStats := e.executor.Stats()

	return WarmingStats{
		QueueSize:       e.queue.Len(),
		InFlight:        e.queue.InFlightCount(),
		TotalWarmed:     execStats.TotalWarmed,
		Completed:       execStats.Completed,
		Failed:          execStats.Failed,
		Dropped:         execStats.Dropped + e.queue.Dropped(),
		Deduped:         e.queue.Deduped(),
		PatternsLearned: e.analyzer.ModelCount(),
		EntitiesTracked: e.predictor.EntitiesTracked(),
	}
}

// GetCacheStats 获取缓存层统计
func (e *Engine) GetCacheStats() cache.CacheStats {
	return e.cache.Stats()
}

// GetProfiles 获取当前时段画像快照
func (e *Engine) GetProfiles() map[string]pattern.PatternProfile {
	return e.analyzer.Profiles()
}
