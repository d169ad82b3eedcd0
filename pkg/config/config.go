package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config 主配置结构
type Config struct {
	// 缓存配置
	Cache CacheConfig `json:"cache" mapstructure:"cache"`

	// Redis 远程缓存配置（Cache.Backend 为 redis 时生效）
	Redis RedisConfig `json:"redis" mapstructure:"redis"`

	// 访问记录配置
	Usage UsageConfig `json:"usage" mapstructure:"usage"`

	// 模式分析配置
	Pattern PatternConfig `json:"pattern" mapstructure:"pattern"`

	// 行为预测配置
	Behavior BehaviorConfig `json:"behavior" mapstructure:"behavior"`

	// 预热调度配置
	Warming WarmingConfig `json:"warming" mapstructure:"warming"`

	// 观测 API 配置
	API APIConfig `json:"api" mapstructure:"api"`

	// 遥测上报配置
	Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`

	// 日志配置
	Logger LoggerConfig `json:"logger" mapstructure:"logger"`
}

// CacheConfig 缓存层配置
type CacheConfig struct {
	Backend         string        `json:"backend" mapstructure:"backend"`                   // 缓存后端 (memory, redis)
	MaxEntries      int           `json:"max_entries" mapstructure:"max_entries"`           // 最大条目数
	DefaultTTL      time.Duration `json:"default_ttl" mapstructure:"default_ttl"`           // 默认生存时间
	CleanupInterval time.Duration `json:"cleanup_interval" mapstructure:"cleanup_interval"` // 过期清理间隔，0 表示不启动清理协程
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `json:"addr" mapstructure:"addr"`         // 服务器地址 host:port
	Password string `json:"password" mapstructure:"password"` // 密码
	DB       int    `json:"db" mapstructure:"db"`             // 数据库编号
}

// UsageConfig 访问记录器配置
type UsageConfig struct {
	MaxPointsPerPattern int           `json:"max_points_per_pattern" mapstructure:"max_points_per_pattern"` // 每个键模式保留的最大数据点数
	Retention           time.Duration `json:"retention" mapstructure:"retention"`                           // 数据点最大保留时长
}

// PatternConfig 模式分析器配置
type PatternConfig struct {
	MinBucketPoints  int `json:"min_bucket_points" mapstructure:"min_bucket_points"`     // 时间桶报告为模式所需的最小数据点数
	MinFitPoints     int `json:"min_fit_points" mapstructure:"min_fit_points"`           // 拟合预测模型所需的最小数据点数
	TopPatterns      int `json:"top_patterns" mapstructure:"top_patterns"`               // 每轮分析的热门键模式数量上限
	TopKeysPerBucket int `json:"top_keys_per_bucket" mapstructure:"top_keys_per_bucket"` // 每个时间桶记录的热门键数量
}

// BehaviorConfig 行为预测器配置
type BehaviorConfig struct {
	Window              time.Duration `json:"window" mapstructure:"window"`                                 // 活动记录保留窗口
	MaxRecordsPerEntity int           `json:"max_records_per_entity" mapstructure:"max_records_per_entity"` // 每个实体保留的最大活动数
	MaxTransitions      int           `json:"max_transitions" mapstructure:"max_transitions"`               // 转移索引的最大条目数
	MaxKeysPerSuffix    int           `json:"max_keys_per_suffix" mapstructure:"max_keys_per_suffix"`       // 每个活动后缀记录的最大缓存键数
}

// WarmingConfig 预热调度与执行配置
type WarmingConfig struct {
	AnalyzeInterval  time.Duration `json:"analyze_interval" mapstructure:"analyze_interval"`     // 模式分析周期
	GenerateInterval time.Duration `json:"generate_interval" mapstructure:"generate_interval"`   // 任务生成周期
	DispatchInterval time.Duration `json:"dispatch_interval" mapstructure:"dispatch_interval"`   // 执行调度周期
	QueueCapacity    int           `json:"queue_capacity" mapstructure:"queue_capacity"`         // 任务队列容量
	Concurrency      int           `json:"concurrency" mapstructure:"concurrency"`               // 最大并发执行数
	MinConfidence    float64       `json:"min_confidence" mapstructure:"min_confidence"`         // 生成任务的最小预测置信度
	MinIntensity     float64       `json:"min_intensity" mapstructure:"min_intensity"`           // 生成任务的最小预测强度
	ExecutionWindow  time.Duration `json:"execution_window" mapstructure:"execution_window"`     // 预计访问时间前后的执行窗口
	OffsetStart      time.Duration `json:"offset_start" mapstructure:"offset_start"`             // 预测的最近未来偏移
	OffsetEnd        time.Duration `json:"offset_end" mapstructure:"offset_end"`                 // 预测的最远未来偏移
	OffsetStep       time.Duration `json:"offset_step" mapstructure:"offset_step"`               // 未来偏移步长
	KeysPerPattern   int           `json:"keys_per_pattern" mapstructure:"keys_per_pattern"`     // 每个键模式生成任务的键数量上限
	LoadTimeout      time.Duration `json:"load_timeout" mapstructure:"load_timeout"`             // 单次数据加载超时
	WarmTTLHigh      time.Duration `json:"warm_ttl_high" mapstructure:"warm_ttl_high"`           // CRITICAL/HIGH 任务写入的 TTL
	WarmTTLLow       time.Duration `json:"warm_ttl_low" mapstructure:"warm_ttl_low"`             // 其余任务写入的 TTL
	BehaviorLeadTime time.Duration `json:"behavior_lead_time" mapstructure:"behavior_lead_time"` // 行为预测任务的提前量
	CriticalPatterns []string      `json:"critical_patterns" mapstructure:"critical_patterns"`   // 业务关键键模式
}

// APIConfig 观测 API 配置
type APIConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"` // 是否启动 HTTP 服务
	Port    string `json:"port" mapstructure:"port"`       // 监听端口
	Mode    string `json:"mode" mapstructure:"mode"`       // gin 模式 (debug, release, test)
}

// TelemetryConfig InfluxDB 遥测上报配置
type TelemetryConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	URL      string        `json:"url" mapstructure:"url"`
	Token    string        `json:"token" mapstructure:"token"`
	Org      string        `json:"org" mapstructure:"org"`
	Bucket   string        `json:"bucket" mapstructure:"bucket"`
	Interval time.Duration `json:"interval" mapstructure:"interval"` // 上报周期
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level    string `json:"level" mapstructure:"level"`       // 日志级别 (debug, info, warn, error)
	Format   string `json:"format" mapstructure:"format"`     // 日志格式 (text, json)
	Output   string `json:"output" mapstructure:"output"`     // 输出方式 (console, file)
	Filename string `json:"filename" mapstructure:"filename"` // 日志文件名
}

// Default 返回默认配置
//
// 预热相关的阈值（0.6 置信度、2.0 强度、并发 5 等）沿用线上调优值，
// 全部可通过配置覆盖。
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			Backend:         "memory",
			MaxEntries:      1000,
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: 1 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Usage: UsageConfig{
			MaxPointsPerPattern: 10000,
			Retention:           30 * 24 * time.Hour,
		},
		Pattern: PatternConfig{
			MinBucketPoints:  20,
			MinFitPoints:     50,
			TopPatterns:      20,
			TopKeysPerBucket: 10,
		},
		Behavior: BehaviorConfig{
			Window:              7 * 24 * time.Hour,
			MaxRecordsPerEntity: 200,
			MaxTransitions:      5000,
			MaxKeysPerSuffix:    20,
		},
		Warming: WarmingConfig{
			AnalyzeInterval:  1 * time.Hour,
			GenerateInterval: 15 * time.Minute,
			DispatchInterval: 5 * time.Second,
			QueueCapacity:    100,
			Concurrency:      5,
			MinConfidence:    0.6,
			MinIntensity:     2.0,
			ExecutionWindow:  5 * time.Minute,
			OffsetStart:      5 * time.Minute,
			OffsetEnd:        30 * time.Minute,
			OffsetStep:       5 * time.Minute,
			KeysPerPattern:   5,
			LoadTimeout:      10 * time.Second,
			WarmTTLHigh:      30 * time.Minute,
			WarmTTLLow:       15 * time.Minute,
			BehaviorLeadTime: 1 * time.Minute,
			CriticalPatterns: []string{"lead_scores:*", "conversation_context:*"},
		},
		API: APIConfig{
			Enabled: true,
			Port:    "8080",
			Mode:    "release",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			URL:      "http://localhost:8086",
			Org:      "enterprisehub",
			Bucket:   "cache_warming",
			Interval: 30 * time.Second,
		},
		Logger: LoggerConfig{
			Level:    "info",
			Format:   "text",
			Output:   "console",
			Filename: "warmd.log",
		},
	}
}

// Load 从配置文件加载配置，文件中未出现的字段保持默认值
func Load(configPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return errors.New("cache backend must be memory or redis")
	}

	if c.Cache.MaxEntries <= 0 {
		return errors.New("cache max_entries must be positive")
	}

	if c.Cache.DefaultTTL <= 0 {
		return errors.New("cache default_ttl must be positive")
	}

	if c.Usage.MaxPointsPerPattern <= 0 {
		return errors.New("usage max_points_per_pattern must be positive")
	}

	if c.Usage.Retention <= 0 {
		return errors.New("usage retention must be positive")
	}

	if c.Pattern.MinBucketPoints <= 0 || c.Pattern.MinFitPoints <= 0 {
		return errors.New("pattern sample thresholds must be positive")
	}

	if c.Pattern.TopPatterns <= 0 {
		return errors.New("pattern top_patterns must be positive")
	}

	if c.Behavior.MaxRecordsPerEntity <= 0 {
		return errors.New("behavior max_records_per_entity must be positive")
	}

	if c.Warming.QueueCapacity <= 0 {
		return errors.New("warming queue_capacity must be positive")
	}

	if c.Warming.Concurrency <= 0 {
		return errors.New("warming concurrency must be positive")
	}

	if c.Warming.MinConfidence < 0 || c.Warming.MinConfidence > 1 {
		return errors.New("warming min_confidence must be within [0, 1]")
	}

	if c.Warming.MinIntensity < 0 {
		return errors.New("warming min_intensity cannot be negative")
	}

	if c.Warming.OffsetStep <= 0 {
		return errors.New("warming offset_step must be positive")
	}

	if c.Warming.OffsetEnd < c.Warming.OffsetStart {
		return errors.New("warming offset_end must be >= offset_start")
	}

	if c.Warming.KeysPerPattern <= 0 {
		return errors.New("warming keys_per_pattern must be positive")
	}

	if c.Warming.LoadTimeout <= 0 {
		return errors.New("warming load_timeout must be positive")
	}

	if c.Warming.DispatchInterval <= 0 || c.Warming.GenerateInterval <= 0 || c.Warming.AnalyzeInterval <= 0 {
		return errors.New("warming intervals must be positive")
	}

	if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
		return errors.New("redis addr cannot be empty when backend is redis")
	}

	return nil
}

// SetMaxEntries 设置缓存最大条目数
func (c *Config) SetMaxEntries(n int) *Config {
	c.Cache.MaxEntries = n
	return c
}

// SetConcurrency 设置预热执行并发上限
func (c *Config) SetConcurrency(n int) *Config {
	c.Warming.Concurrency = n
	return c
}

// SetQueueCapacity 设置预热任务队列容量
func (c *Config) SetQueueCapacity(n int) *Config {
	c.Warming.QueueCapacity = n
	return c
}

// SetThresholds 设置任务生成的置信度与强度阈值
func (c *Config) SetThresholds(confidence, intensity float64) *Config {
	c.Warming.MinConfidence = confidence
	c.Warming.MinIntensity = intensity
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}
