package warming

import (
	"time"

	"github.com/google/uuid"
)

// Priority 预热任务优先级，数值越大越优先
type Priority int

const (
	PriorityLow      Priority = 1
	PriorityMedium   Priority = 2
	PriorityHigh     Priority = 3
	PriorityCritical Priority = 4
)

// String 返回优先级名称
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// TaskStatus 预热任务状态
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"   // 已入队等待调度
	StatusScheduled TaskStatus = "scheduled" // 已出队待执行
	StatusExecuting TaskStatus = "executing" // 执行中
	StatusCompleted TaskStatus = "completed" // 预热成功
	StatusFailed    TaskStatus = "failed"    // 加载或写入失败
	StatusDropped   TaskStatus = "dropped"   // 错过执行窗口或被挤出队列
)

// TaskSource 任务来源
type TaskSource string

const (
	SourcePattern  TaskSource = "pattern"  // 时段规律预测
	SourceBehavior TaskSource = "behavior" // 实体行为序列预测
)

// CacheWarmingTask 一次缓存预热任务。
// 同一缓存键在 待执行+执行中 集合里最多出现一次。
type CacheWarmingTask struct {
	ID                  string     `json:"id"`
	CacheKey            string     `json:"cache_key"`
	Pattern             string     `json:"pattern"` // 所属键模式
	Priority            Priority   `json:"priority"`
	Status              TaskStatus `json:"status"`
	Source              TaskSource `json:"source"`
	PredictedAccessTime time.Time  `json:"predicted_access_time"` // 预计被访问的时间
	Confidence          float64    `json:"confidence"`            // 预测置信度
	Intensity           float64    `json:"intensity"`             // 预测访问强度
	EntityID            string     `json:"entity_id,omitempty"`   // 行为来源任务的触发实体
	CreatedAt           time.Time  `json:"created_at"`
}

// NewTask 创建预热任务
func NewTask(cacheKey, pattern string, priority Priority, source TaskSource, predictedAt time.Time) *CacheWarmingTask {
	return &CacheWarmingTask{
		ID:                  uuid.New().String(),
		CacheKey:            cacheKey,
		Pattern:             pattern,
		Priority:            priority,
		Status:              StatusPending,
		Source:              source,
		PredictedAccessTime: predictedAt,
		CreatedAt:           time.Now(),
	}
}

// less 判断任务 a 是否应先于 b 执行：优先级高者先，同级则预计访问时间早者先
func less(a, b *CacheWarmingTask) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.PredictedAccessTime.Before(b.PredictedAccessTime)
}
