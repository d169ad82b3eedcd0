package warming

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/cache"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/loader"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
)

// ExecutorConfig 执行器配置
type ExecutorConfig struct {
	Concurrency     int           `yaml:"concurrency"`      // 同时执行的预热任务上限
	ExecutionWindow time.Duration `yaml:"execution_window"` // 预计访问时间前后的执行窗口
	WarmTTLHigh     time.Duration `yaml:"warm_ttl_high"`    // CRITICAL/HIGH 任务写入缓存的 TTL
	WarmTTLLow      time.Duration `yaml:"warm_ttl_low"`     // MEDIUM/LOW 任务写入缓存的 TTL
	LoadTimeout     time.Duration `yaml:"load_timeout"`     // 单次数据加载超时
}

// ExecutorStats 执行器累计统计
type ExecutorStats struct {
	TotalWarmed   int64     `json:"total_warmed"` // 已出队执行过的任务总数
	Completed     int64     `json:"completed"`
	Failed        int64     `json:"failed"`
	Dropped       int64     `json:"dropped"` // 出队后因错过窗口被放弃的任务
	AlreadyCached int64     `json:"already_cached"`
	LastDispatch  time.Time `json:"last_dispatch"`
}

// Executor 从队列取出进入执行窗口的任务并发执行预热。
// 单个任务失败只影响自身，不中断同批次其他任务。
type Executor struct {
	queue    *TaskQueue
	cache    cache.Cache
	registry *loader.Registry
	config   ExecutorConfig
	log      *logrus.Entry

	// 跨调度轮次共享的并发闸门，重叠的调度轮次也受同一个上限约束
	sem chan struct{}

	mu    sync.Mutex
	stats ExecutorStats
}

// NewExecutor 创建执行器
func NewExecutor(queue *TaskQueue, c cache.Cache, registry *loader.Registry, config ExecutorConfig) *Executor {
	if config.Concurrency <= 0 {
		config.Concurrency = 5
	}
	if config.ExecutionWindow <= 0 {
		config.ExecutionWindow = 5 * time.Minute
	}
	if config.WarmTTLHigh <= 0 {
		config.WarmTTLHigh = 30 * time.Minute
	}
	if config.WarmTTLLow <= 0 {
		config.WarmTTLLow = 15 * time.Minute
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 10 * time.Second
	}

	return &Executor{
		queue:    queue,
		cache:    c,
		registry: registry,
		config:   config,
		log:      logger.WithComponent("warming-executor"),
		sem:      make(chan struct{}, config.Concurrency),
	}
}

// DispatchOnce 执行一轮调度：取出所有进入执行窗口的任务并发预热，
// 等待本批任务全部结束后返回。已经错过窗口的任务直接标记为 dropped。
func (e *Executor) DispatchOnce(ctx context.Context, now time.Time) {
	deadline := now.Add(e.config.ExecutionWindow)
	expired := now.Add(-e.config.ExecutionWindow)

	var wg sync.WaitGroup

	for {
		task := e.queue.PopEligible(deadline)
		if task == nil {
			break
		}

		// 预计访问时间已过窗口，放弃执行
		if task.PredictedAccessTime.Before(expired) {
			task.Status = StatusDropped
			e.queue.Release(task.CacheKey)
			e.recordOutcome(StatusDropped, false)
			e.log.Debugf("任务 %s 错过执行窗口, 键=%s", task.ID, task.CacheKey)
			continue
		}

		wg.Add(1)
		e.sem <- struct{}{}
		go func(t *CacheWarmingTask) {
			defer wg.Done()
			defer func() { <-e.sem }()
			e.execute(ctx, t)
		}(task)
	}

	wg.Wait()

	e.mu.Lock()
	e.stats.LastDispatch = now
	e.mu.Unlock()
}

// execute 执行单个预热任务
func (e *Executor) execute(ctx context.Context, task *CacheWarmingTask) {
	task.Status = StatusExecuting
	defer e.queue.Release(task.CacheKey)

	// 键已在缓存中则无需重复加载
	if _, err := e.cache.Get(ctx, task.CacheKey); err == nil {
		task.Status = StatusCompleted
		e.recordOutcome(StatusCompleted, true)
		return
	}

	loadCtx, cancel := context.WithTimeout(ctx, e.config.LoadTimeout)
	defer cancel()

	params := loader.ParamsFromKey(task.CacheKey)
	value, err := e.registry.Load(loadCtx, params)
	if err != nil {
		task.Status = StatusFailed
		e.recordOutcome(StatusFailed, false)
		e.log.WithError(err).Warnf("任务 %s 预热失败, 键=%s", task.ID, task.CacheKey)
		return
	}

	if err := e.cache.Set(ctx, task.CacheKey, value, e.ttlFor(task.Priority)); err != nil {
		task.Status = StatusFailed
		e.recordOutcome(StatusFailed, false)
		e.log.WithError(err).Warnf("任务 %s 写入缓存失败, 键=%s", task.ID, task.CacheKey)
		return
	}

	task.Status = StatusCompleted
	e.recordOutcome(StatusCompleted, false)
}

// Stats 获取统计信息快照
func (e *Executor) Stats() ExecutorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ttlFor 按优先级决定预热写入的 TTL。
// 高优先级数据预计很快被访问，给更长的存活时间。
func (e *Executor) ttlFor(p Priority) time.Duration {
	if p >= PriorityHigh {
		return e.config.WarmTTLHigh
	}
	return e.config.WarmTTLLow
}

func (e *Executor) recordOutcome(status TaskStatus, alreadyCached bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TotalWarmed++
	switch status {
	case StatusCompleted:
		e.stats.Completed++
	case StatusFailed:
		e.stats.Failed++
	case StatusDropped:
		e.stats.Dropped++
	}
	if alreadyCached {
		e.stats.AlreadyCached++
	}
}
