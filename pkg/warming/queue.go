package warming

import (
	"container/heap"
	"sync"
	"time"
)

// taskHeap 按 less 排序的任务堆，堆顶为下一个应执行的任务
type taskHeap []*heapItem

type heapItem struct {
	task  *CacheWarmingTask
	index int
}

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return less(h[i].task, h[j].task) }
func (h *taskHeap) Push(x interface{}) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// TaskQueue 有界的预热任务优先队列。
//
// 不变式：同一缓存键在 待执行+执行中 集合里最多存在一个任务。
// 队列满时，只有优先于当前最差任务的新任务才能入队，被挤出的任务
// 标记为 dropped。
type TaskQueue struct {
	mu       sync.Mutex
	heap     taskHeap
	pending  map[string]*heapItem    // 缓存键 -> 堆中的任务
	inFlight map[string]struct{}     // 执行中的缓存键
	capacity int

	dropped int64
	deduped int64
}

// NewTaskQueue 创建任务队列
func NewTaskQueue(capacity int) *TaskQueue {
	if capacity <= 0 {
		capacity = 100
	}

	return &TaskQueue{
		heap:     make(taskHeap, 0, capacity),
		pending:  make(map[string]*heapItem),
		inFlight: make(map[string]struct{}),
		capacity: capacity,
	}
}

// Enqueue 任务入队。返回 false 表示任务被拒绝或挤掉：
// 同键任务已在队列或执行中时直接忽略；队列满且新任务不优于
// 现有最差任务时标记为 dropped。
func (q *TaskQueue) Enqueue(task *CacheWarmingTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.pending[task.CacheKey]; exists {
		q.deduped++
		return false
	}
	if _, executing := q.inFlight[task.CacheKey]; executing {
		q.deduped++
		return false
	}

	if len(q.heap) >= q.capacity {
		worst := q.worstItem()
		if worst == nil || !less(task, worst.task) {
			task.Status = StatusDropped
			q.dropped++
			return false
		}

		// 挤掉最差任务
		heap.Remove(&q.heap, worst.index)
		delete(q.pending, worst.task.CacheKey)
		worst.task.Status = StatusDropped
		q.dropped++
	}

	task.Status = StatusPending
	item := &heapItem{task: task}
	heap.Push(&q.heap, item)
	q.pending[task.CacheKey] = item
	return true
}

// Pop 取出下一个应执行的任务并标记为执行中。队列为空时返回 nil。
func (q *TaskQueue) Pop() *CacheWarmingTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}

	item := heap.Pop(&q.heap).(*heapItem)
	delete(q.pending, item.task.CacheKey)

	item.task.Status = StatusScheduled
	q.inFlight[item.task.CacheKey] = struct{}{}
	return item.task
}

// PopEligible 取出预计访问时间不晚于 deadline 的最优任务并标记为执行中，
// 没有符合条件的任务时返回 nil。逐项扫描而不是只看堆顶：堆按优先级
// 排序，远未来的高优先级任务不能挡住已进入执行窗口的低优先级任务。
func (q *TaskQueue) PopEligible(deadline time.Time) *CacheWarmingTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *heapItem
	for _, item := range q.heap {
		if item.task.PredictedAccessTime.After(deadline) {
			continue
		}
		if best == nil || less(item.task, best.task) {
			best = item
		}
	}
	if best == nil {
		return nil
	}

	heap.Remove(&q.heap, best.index)
	delete(q.pending, best.task.CacheKey)

	best.task.Status = StatusScheduled
	q.inFlight[best.task.CacheKey] = struct{}{}
	return best.task
}

// Peek 查看下一个任务但不出队
func (q *TaskQueue) Peek() *CacheWarmingTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0].task
}

// Release 任务到达终态后释放其缓存键，允许同键任务再次入队
func (q *TaskQueue) Release(cacheKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, cacheKey)
}

// Len 返回待执行任务数
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// InFlightCount 返回执行中任务数
func (q *TaskQueue) InFlightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Dropped 返回累计被挤掉或拒绝的任务数
func (q *TaskQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Deduped 返回因同键任务已存在而被忽略的任务数
func (q *TaskQueue) Deduped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.deduped
}

// worstItem 找到堆中最不该执行的任务（调用方需持有锁）
func (q *TaskQueue) worstItem() *heapItem {
	var worst *heapItem
	for _, item := range q.heap {
		if worst == nil || less(worst.task, item.task) {
			worst = item
		}
	}
	return worst
}
