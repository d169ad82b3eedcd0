package warming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/cache"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/loader"
)

// countingLoader 记录加载次数的模拟加载器
type countingLoader struct {
	mu        sync.Mutex
	loads     int
	failKinds map[string]bool
}

func (l *countingLoader) Load(ctx context.Context, params loader.Params) (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.loads++
	if l.failKinds[params.Kind()] {
		return nil, errors.New("数据源不可用")
	}
	return map[string]interface{}{"kind": params.Kind()}, nil
}

func (l *countingLoader) loadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

func newExecutorFixture(failKinds map[string]bool) (*Executor, *TaskQueue, cache.Cache, *countingLoader) {
	queue := NewTaskQueue(100)
	c := cache.NewLRUCache(cache.LRUCacheConfig{MaxEntries: 100, DefaultTTL: time.Minute})

	ld := &countingLoader{failKinds: failKinds}
	registry := loader.NewRegistry()
	for _, kind := range []string{"lead_scores", "property_matches", "conversation_context"} {
		registry.Register(kind, ld)
	}

	executor := NewExecutor(queue, c, registry, ExecutorConfig{Concurrency: 2})
	return executor, queue, c, ld
}

func TestExecutor_WarmTask(t *testing.T) {
	executor, queue, c, ld := newExecutorFixture(nil)
	now := time.Now()

	task := NewTask("lead_scores:42", "lead_scores:*", PriorityHigh, SourcePattern, now)
	require.True(t, queue.Enqueue(task))

	executor.DispatchOnce(context.Background(), now)

	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 1, ld.loadCount())

	// 数据已写入缓存
	value, err := c.Get(context.Background(), "lead_scores:42")
	require.NoError(t, err)
	assert.NotNil(t, value)

	stats := executor.Stats()
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(0), stats.Failed)
	assert.Equal(t, 0, queue.InFlightCount())
}

func TestExecutor_AlreadyCachedSkipsLoad(t *testing.T) {
	executor, queue, c, ld := newExecutorFixture(nil)
	now := time.Now()

	require.NoError(t, c.Set(context.Background(), "lead_scores:42", "warm", time.Minute))

	task := NewTask("lead_scores:42", "lead_scores:*", PriorityHigh, SourcePattern, now)
	require.True(t, queue.Enqueue(task))

	executor.DispatchOnce(context.Background(), now)

	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 0, ld.loadCount(), "已缓存的键不应重复加载")
	assert.Equal(t, int64(1), executor.Stats().AlreadyCached)
}

func TestExecutor_FailureIsolation(t *testing.T) {
	executor, queue, c, _ := newExecutorFixture(map[string]bool{"property_matches": true})
	now := time.Now()

	failing := NewTask("property_matches:1", "property_matches:*", PriorityHigh, SourcePattern, now)
	healthy := NewTask("lead_scores:1", "lead_scores:*", PriorityHigh, SourcePattern, now)
	require.True(t, queue.Enqueue(failing))
	require.True(t, queue.Enqueue(healthy))

	executor.DispatchOnce(context.Background(), now)

	// 失败任务不影响同批次其他任务
	assert.Equal(t, StatusFailed, failing.Status)
	assert.Equal(t, StatusCompleted, healthy.Status)

	_, err := c.Get(context.Background(), "lead_scores:1")
	assert.NoError(t, err)

	stats := executor.Stats()
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, 0, queue.InFlightCount())
}

func TestExecutor_UnknownKindFails(t *testing.T) {
	executor, queue, _, _ := newExecutorFixture(nil)
	now := time.Now()

	task := NewTask("unregistered:1", "unregistered:*", PriorityMedium, SourcePattern, now)
	require.True(t, queue.Enqueue(task))

	executor.DispatchOnce(context.Background(), now)

	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, int64(1), executor.Stats().Failed)
}

func TestExecutor_DropsExpiredTasks(t *testing.T) {
	executor, queue, _, ld := newExecutorFixture(nil)
	now := time.Now()

	// 预计访问时间早于执行窗口下界
	expired := NewTask("lead_scores:1", "lead_scores:*", PriorityHigh, SourcePattern, now.Add(-10*time.Minute))
	require.True(t, queue.Enqueue(expired))

	executor.DispatchOnce(context.Background(), now)

	assert.Equal(t, StatusDropped, expired.Status)
	assert.Equal(t, 0, ld.loadCount())
	assert.Equal(t, int64(1), executor.Stats().Dropped)
	assert.Equal(t, 0, queue.InFlightCount())
}

func TestExecutor_LeavesFutureTasks(t *testing.T) {
	executor, queue, _, ld := newExecutorFixture(nil)
	now := time.Now()

	// 预计访问时间在执行窗口之外，本轮不执行
	future := NewTask("lead_scores:1", "lead_scores:*", PriorityHigh, SourcePattern, now.Add(time.Hour))
	require.True(t, queue.Enqueue(future))

	executor.DispatchOnce(context.Background(), now)

	assert.Equal(t, StatusPending, future.Status)
	assert.Equal(t, 1, queue.Len())
	assert.Equal(t, 0, ld.loadCount())

	// 时间推进到窗口内后正常执行
	executor.DispatchOnce(context.Background(), now.Add(time.Hour))
	assert.Equal(t, StatusCompleted, future.Status)
}

func TestExecutor_FutureHeadDoesNotBlockWindow(t *testing.T) {
	executor, queue, c, ld := newExecutorFixture(nil)
	now := time.Now()

	// 远未来的 CRITICAL 任务在堆顶，窗口内的 MEDIUM 任务必须照常执行
	farCritical := NewTask("conversation_context:7", "conversation_context:*", PriorityCritical, SourcePattern, now.Add(30*time.Minute))
	dueMedium := NewTask("lead_scores:1", "lead_scores:*", PriorityMedium, SourcePattern, now)
	require.True(t, queue.Enqueue(farCritical))
	require.True(t, queue.Enqueue(dueMedium))

	executor.DispatchOnce(context.Background(), now)

	assert.Equal(t, StatusCompleted, dueMedium.Status)
	assert.Equal(t, 1, ld.loadCount())

	_, err := c.Get(context.Background(), "lead_scores:1")
	assert.NoError(t, err)

	// CRITICAL 任务留在队列里，到自己的窗口再执行
	assert.Equal(t, StatusPending, farCritical.Status)
	assert.Equal(t, 1, queue.Len())

	executor.DispatchOnce(context.Background(), now.Add(30*time.Minute))
	assert.Equal(t, StatusCompleted, farCritical.Status)
}

func TestExecutor_WarmTTLByPriority(t *testing.T) {
	queue := NewTaskQueue(10)
	c := cache.NewLRUCache(cache.LRUCacheConfig{MaxEntries: 10, DefaultTTL: time.Hour})

	ld := &countingLoader{}
	registry := loader.NewRegistry()
	registry.Register("lead_scores", ld)
	registry.Register("property_matches", ld)

	executor := NewExecutor(queue, c, registry, ExecutorConfig{
		Concurrency: 1,
		WarmTTLHigh: 10 * time.Second,
		WarmTTLLow:  20 * time.Millisecond,
	})

	now := time.Now()
	high := NewTask("lead_scores:1", "lead_scores:*", PriorityCritical, SourcePattern, now)
	low := NewTask("property_matches:1", "property_matches:*", PriorityLow, SourcePattern, now)
	require.True(t, queue.Enqueue(high))
	require.True(t, queue.Enqueue(low))

	executor.DispatchOnce(context.Background(), now)

	time.Sleep(50 * time.Millisecond)

	// 低优先级条目先过期
	_, err := c.Get(context.Background(), "property_matches:1")
	assert.Error(t, err)

	_, err = c.Get(context.Background(), "lead_scores:1")
	assert.NoError(t, err)
}

func TestExecutor_ConcurrencyBound(t *testing.T) {
	queue := NewTaskQueue(100)
	c := cache.NewLRUCache(cache.LRUCacheConfig{MaxEntries: 100, DefaultTTL: time.Minute})

	var mu sync.Mutex
	active, peak := 0, 0

	registry := loader.NewRegistry()
	registry.Register("lead_scores", loader.LoaderFunc(
		func(ctx context.Context, params loader.Params) (interface{}, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return "value", nil
		}))

	executor := NewExecutor(queue, c, registry, ExecutorConfig{Concurrency: 3})

	now := time.Now()
	for i := 0; i < 12; i++ {
		key := "lead_scores:" + string(rune('a'+i))
		require.True(t, queue.Enqueue(NewTask(key, "lead_scores:*", PriorityMedium, SourcePattern, now)))
	}

	executor.DispatchOnce(context.Background(), now)

	assert.LessOrEqual(t, peak, 3, "并发执行数不应超过上限")
	assert.Equal(t, int64(12), executor.Stats().Completed)
}

func TestExecutor_ConcurrencyBoundAcrossCycles(t *testing.T) {
	queue := NewTaskQueue(100)
	c := cache.NewLRUCache(cache.LRUCacheConfig{MaxEntries: 100, DefaultTTL: time.Minute})

	var mu sync.Mutex
	active, peak := 0, 0

	registry := loader.NewRegistry()
	registry.Register("lead_scores", loader.LoaderFunc(
		func(ctx context.Context, params loader.Params) (interface{}, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return "value", nil
		}))

	executor := NewExecutor(queue, c, registry, ExecutorConfig{Concurrency: 3})

	now := time.Now()
	for i := 0; i < 12; i++ {
		key := "lead_scores:" + string(rune('a'+i))
		require.True(t, queue.Enqueue(NewTask(key, "lead_scores:*", PriorityMedium, SourcePattern, now)))
	}

	// 两轮调度重叠执行时仍共用同一个并发上限
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			executor.DispatchOnce(context.Background(), now)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 3, "重叠调度轮次的总并发数不应超过上限")
	assert.Equal(t, int64(12), executor.Stats().Completed)
}
