package loader

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	apperr "github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/error"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
)

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name        string        `yaml:"name"`          // 熔断器名称
	MaxRequests uint32        `yaml:"max_requests"`  // 半开状态下的最大请求数
	Interval    time.Duration `yaml:"interval"`      // 统计窗口时间
	Timeout     time.Duration `yaml:"timeout"`       // 熔断器打开后的超时时间
	ReadyToTrip uint32        `yaml:"ready_to_trip"` // 触发熔断的连续失败次数阈值
	Enabled     bool          `yaml:"enabled"`       // 是否启用熔断器
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "DataLoader",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
		Enabled:     true,
	}
}

// CircuitBreakerStats 熔断器统计信息
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	LastFailure        time.Time `json:"last_failure"`
}

// CircuitBreakerLoader 熔断器装饰的加载器。
// 数据源持续失败时快速失败，避免预热任务压垮已经不健康的后端。
type CircuitBreakerLoader struct {
	base   Loader
	cb     *gobreaker.CircuitBreaker
	config *CircuitBreakerConfig

	mu    sync.RWMutex
	stats CircuitBreakerStats
}

// NewCircuitBreakerLoader 用熔断器包装加载器
func NewCircuitBreakerLoader(base Loader, config *CircuitBreakerConfig) *CircuitBreakerLoader {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	log := logger.WithComponent("loader-breaker")

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 连续失败次数达到阈值时触发熔断
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("熔断器 %s 状态从 %v 变更为 %v", name, from, to)
		},
	}

	return &CircuitBreakerLoader{
		base:   base,
		cb:     gobreaker.NewCircuitBreaker(settings),
		config: config,
	}
}

// Load 通过熔断器执行加载
func (c *CircuitBreakerLoader) Load(ctx context.Context, params Params) (interface{}, error) {
	if !c.config.Enabled {
		return c.base.Load(ctx, params)
	}

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return c.base.Load(ctx, params)
	})

	c.handleResult(err)

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, apperr.WrapError(ErrLoadFailed, "loader circuit open", err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// handleResult 更新统计信息
func (c *CircuitBreakerLoader) handleResult(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.stats.FailedRequests++
		c.stats.LastFailure = time.Now()
	} else {
		c.stats.SuccessfulRequests++
	}
}

// GetState 获取熔断器当前状态
func (c *CircuitBreakerLoader) GetState() gobreaker.State {
	return c.cb.State()
}

// GetStats 获取统计信息快照
func (c *CircuitBreakerLoader) GetStats() CircuitBreakerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// SetEnabled 设置是否启用熔断器
func (c *CircuitBreakerLoader) SetEnabled(enabled bool) {
	c.config.Enabled = enabled
}

// IsOpen 检查熔断器是否处于打开状态
func (c *CircuitBreakerLoader) IsOpen() bool {
	return c.cb.State() == gobreaker.StateOpen
}

var _ Loader = (*CircuitBreakerLoader)(nil)
