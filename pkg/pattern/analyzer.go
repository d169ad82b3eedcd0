package pattern

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/usage"
)

// 时间桶名称。工作日按当地小时划分粗粒度时段，周末单独一桶。
const (
	BucketMorningRush   = "morning_rush"   // 工作日 07:00-09:59
	BucketMidday        = "midday"         // 工作日 10:00-13:59
	BucketAfternoonPeak = "afternoon_peak" // 工作日 14:00-17:59
	BucketEvening       = "evening"        // 工作日 18:00-22:59
	BucketOffHours      = "off_hours"      // 工作日其余时间
	BucketWeekend       = "weekend"        // 周六、周日
)

// BucketOf 返回时间点所属的时间桶
func BucketOf(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return BucketWeekend
	}

	switch hour := t.Hour(); {
	case hour >= 7 && hour < 10:
		return BucketMorningRush
	case hour >= 10 && hour < 14:
		return BucketMidday
	case hour >= 14 && hour < 18:
		return BucketAfternoonPeak
	case hour >= 18 && hour < 23:
		return BucketEvening
	default:
		return BucketOffHours
	}
}

// PatternProfile 一个时间桶内挖掘出的访问规律
type PatternProfile struct {
	Bucket        string   `json:"bucket"`          // 时间桶名称
	AvgAccessRate float64  `json:"avg_access_rate"` // 平均每小时访问次数
	PeakHour      int      `json:"peak_hour"`       // 访问最集中的小时
	TopKeys       []string `json:"top_keys"`        // 访问最频繁的缓存键（有界 top-N）
	Points        int      `json:"points"`          // 参与统计的数据点数
}

// FitStatus 单个键模式的拟合结果状态
type FitStatus string

const (
	FitStatusOK               FitStatus = "ok"
	FitStatusInsufficientData FitStatus = "insufficient_data" // 软状态，不是错误
	FitStatusFailed           FitStatus = "failed"
)

// AnalysisResult 一轮分析的汇总
type AnalysisResult struct {
	At           time.Time            `json:"at"`
	ProfileCount int                  `json:"profile_count"`
	Fits         map[string]FitStatus `json:"fits"` // 键模式 -> 拟合状态
}

// AnalyzerConfig 模式分析器配置
type AnalyzerConfig struct {
	MinBucketPoints  int `yaml:"min_bucket_points"`   // 时间桶qualify所需最小数据点数
	MinFitPoints     int `yaml:"min_fit_points"`      // 拟合模型所需最小数据点数
	TopPatterns      int `yaml:"top_patterns"`        // 每轮分析的热门键模式上限
	TopKeysPerBucket int `yaml:"top_keys_per_bucket"` // 每桶记录的热门键数量
}

// Analyzer 周期性挖掘访问历史中的时段规律，并为热门键模式拟合
// 短期访问量预测模型。模型和画像每轮整体重建，由单一写者替换，
// 读取方只拿快照。
type Analyzer struct {
	mu         sync.RWMutex
	recorder   *usage.Recorder
	forecaster Forecaster
	config     AnalyzerConfig
	log        *logrus.Entry

	profiles map[string]PatternProfile // 时间桶 -> 画像（每轮替换）
	models   map[string]Model          // 键模式 -> 预测模型
}

// NewAnalyzer 创建模式分析器
func NewAnalyzer(recorder *usage.Recorder, forecaster Forecaster, config AnalyzerConfig) *Analyzer {
	if config.MinBucketPoints <= 0 {
		config.MinBucketPoints = 20
	}
	if config.MinFitPoints <= 0 {
		config.MinFitPoints = 50
	}
	if config.TopPatterns <= 0 {
		config.TopPatterns = 20
	}
	if config.TopKeysPerBucket <= 0 {
		config.TopKeysPerBucket = 10
	}
	if forecaster == nil {
		forecaster = NewLeastSquaresForecaster()
	}

	return &Analyzer{
		recorder:   recorder,
		forecaster: forecaster,
		config:     config,
		log:        logger.WithComponent("pattern-analyzer"),
		profiles:   make(map[string]PatternProfile),
		models:     make(map[string]Model),
	}
}

// Analyze 执行一轮分析：重建时间桶画像并重新拟合热门键模式的模型。
// 单个键模式拟合失败只影响自身，其余照常进行。
func (a *Analyzer) Analyze(now time.Time) AnalysisResult {
	result := AnalysisResult{
		At:   now,
		Fits: make(map[string]FitStatus),
	}

	patterns := a.recorder.TopPatterns(a.config.TopPatterns)

	histories := make(map[string][]usage.UsageDataPoint, len(patterns))
	for _, p := range patterns {
		histories[p] = a.recorder.History(p)
	}

	profiles := a.buildProfiles(histories)
	result.ProfileCount = len(profiles)

	models := make(map[string]Model, len(patterns))
	for _, p := range patterns {
		points := histories[p]
		if len(points) < a.config.MinFitPoints {
			result.Fits[p] = FitStatusInsufficientData
			continue
		}

		model, err := a.forecaster.Fit(aggregate(points))
		if err != nil {
			result.Fits[p] = FitStatusFailed
			a.log.WithError(err).Warnf("键模式 %s 模型拟合失败", p)
			continue
		}

		models[p] = model
		result.Fits[p] = FitStatusOK
	}

	a.mu.Lock()
	a.profiles = profiles
	a.models = models
	a.mu.Unlock()

	a.log.Debugf("分析完成: %d 个时段画像, %d 个预测模型", len(profiles), len(models))
	return result
}

// PredictUsage 预测键模式在指定时间的访问强度和置信度。
// 没有对应模型时返回低置信度默认值，而不是失败。
func (a *Analyzer) PredictUsage(keyPattern string, at time.Time) (intensity, confidence float64) {
	a.mu.RLock()
	model, exists := a.models[keyPattern]
	a.mu.RUnlock()

	if !exists {
		return 1.0, 0.1
	}

	return model.Predict(TimeFeatures(at)), model.Confidence()
}

// TrackedPatterns 返回当前持有预测模型的键模式列表
func (a *Analyzer) TrackedPatterns() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	patterns := make([]string, 0, len(a.models))
	for p := range a.models {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	return patterns
}

// ModelCount 返回当前模型数量
func (a *Analyzer) ModelCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.models)
}

// Profiles 返回当前时段画像的快照
func (a *Analyzer) Profiles() map[string]PatternProfile {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot := make(map[string]PatternProfile, len(a.profiles))
	for bucket, profile := range a.profiles {
		snapshot[bucket] = profile
	}
	return snapshot
}

// buildProfiles 按时间桶聚合所有键模式的数据点
func (a *Analyzer) buildProfiles(histories map[string][]usage.UsageDataPoint) map[string]PatternProfile {
	type bucketAgg struct {
		points    int
		hourCount map[int]int
		keyCount  map[string]int
		hours     map[string]struct{} // 观测到的 (日期,小时) 单元
	}

	aggs := make(map[string]*bucketAgg)

	for _, points := range histories {
		for _, point := range points {
			bucket := BucketOf(point.Timestamp)
			agg, exists := aggs[bucket]
			if !exists {
				agg = &bucketAgg{
					hourCount: make(map[int]int),
					keyCount:  make(map[string]int),
					hours:     make(map[string]struct{}),
				}
				aggs[bucket] = agg
			}

			agg.points++
			agg.hourCount[point.Timestamp.Hour()]++
			agg.keyCount[point.CacheKey]++
			agg.hours[point.Timestamp.Format("2006-01-02T15")] = struct{}{}
		}
	}

	profiles := make(map[string]PatternProfile)
	for bucket, agg := range aggs {
		if agg.points < a.config.MinBucketPoints {
			continue
		}

		peakHour, peakCount := 0, -1
		for hour, count := range agg.hourCount {
			if count > peakCount {
				peakHour, peakCount = hour, count
			}
		}

		keys := make([]string, 0, len(agg.keyCount))
		for key := range agg.keyCount {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if agg.keyCount[keys[i]] != agg.keyCount[keys[j]] {
				return agg.keyCount[keys[i]] > agg.keyCount[keys[j]]
			}
			return keys[i] < keys[j]
		})
		if len(keys) > a.config.TopKeysPerBucket {
			keys = keys[:a.config.TopKeysPerBucket]
		}

		profiles[bucket] = PatternProfile{
			Bucket:        bucket,
			AvgAccessRate: float64(agg.points) / float64(len(agg.hours)),
			PeakHour:      peakHour,
			TopKeys:       keys,
			Points:        agg.points,
		}
	}

	return profiles
}

// aggregate 把原始数据点聚合为 (日期, 小时) 粒度的强度样本
func aggregate(points []usage.UsageDataPoint) []Sample {
	type cell struct {
		day  string
		hour int
	}

	counts := make(map[cell]*Sample)
	for _, point := range points {
		c := cell{day: point.Timestamp.Format("2006-01-02"), hour: point.Timestamp.Hour()}
		s, exists := counts[c]
		if !exists {
			s = &Sample{Hour: c.hour, Weekday: point.Timestamp.Weekday()}
			counts[c] = s
		}
		s.Intensity++
	}

	samples := make([]Sample, 0, len(counts))
	for _, s := range counts {
		samples = append(samples, *s)
	}
	return samples
}
