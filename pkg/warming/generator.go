package warming

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/behavior"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/logger"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/pattern"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/usage"
)

// GeneratorConfig 任务生成器配置
type GeneratorConfig struct {
	MinConfidence    float64       `yaml:"min_confidence"`     // 生成任务的最低预测置信度
	MinIntensity     float64       `yaml:"min_intensity"`      // 生成任务的最低预测访问强度
	OffsetStart      time.Duration `yaml:"offset_start"`       // 最近的预测时间偏移
	OffsetEnd        time.Duration `yaml:"offset_end"`         // 最远的预测时间偏移
	OffsetStep       time.Duration `yaml:"offset_step"`        // 偏移步长
	KeysPerPattern   int           `yaml:"keys_per_pattern"`   // 每个键模式生成任务的键数量上限
	BehaviorLeadTime time.Duration `yaml:"behavior_lead_time"` // 行为任务的预计访问提前量
	CriticalPatterns []string      `yaml:"critical_patterns"`  // 强制 CRITICAL 优先级的键模式
}

// Generator 把预测结果转换为预热任务。
// 时段规律预测按固定偏移序列扫描未来一段时间；行为预测在实体
// 行为发生时即刻触发。
type Generator struct {
	analyzer  *pattern.Analyzer
	predictor *behavior.Predictor
	recorder  *usage.Recorder
	queue     *TaskQueue
	config    GeneratorConfig
	log       *logrus.Entry

	critical map[string]struct{}
}

// NewGenerator 创建任务生成器
func NewGenerator(analyzer *pattern.Analyzer, predictor *behavior.Predictor, recorder *usage.Recorder, queue *TaskQueue, config GeneratorConfig) *Generator {
	if config.MinConfidence <= 0 {
		config.MinConfidence = 0.6
	}
	if config.MinIntensity <= 0 {
		config.MinIntensity = 2.0
	}
	if config.OffsetStart <= 0 {
		config.OffsetStart = 5 * time.Minute
	}
	if config.OffsetEnd <= 0 {
		config.OffsetEnd = 30 * time.Minute
	}
	if config.OffsetStep <= 0 {
		config.OffsetStep = 5 * time.Minute
	}
	if config.KeysPerPattern <= 0 {
		config.KeysPerPattern = 5
	}
	if config.BehaviorLeadTime <= 0 {
		config.BehaviorLeadTime = 2 * time.Minute
	}

	critical := make(map[string]struct{}, len(config.CriticalPatterns))
	for _, p := range config.CriticalPatterns {
		critical[p] = struct{}{}
	}

	return &Generator{
		analyzer:  analyzer,
		predictor: predictor,
		recorder:  recorder,
		queue:     queue,
		config:    config,
		log:       logger.WithComponent("warming-generator"),
		critical:  critical,
	}
}

// GenerateTasks 扫描所有已拟合的键模式，为未来偏移窗口内预测热度
// 达标的时间点生成预热任务。返回成功入队的任务数。
func (g *Generator) GenerateTasks(now time.Time) int {
	enqueued := 0

	for _, keyPattern := range g.analyzer.TrackedPatterns() {
		offset, bestIntensity, bestConfidence := g.bestOffset(keyPattern, now)
		if offset < 0 {
			continue
		}

		predictedAt := now.Add(offset)
		priority := g.priorityFor(keyPattern, bestIntensity)

		for _, key := range g.recorder.RecentKeys(keyPattern, g.config.KeysPerPattern) {
			task := NewTask(key, keyPattern, priority, SourcePattern, predictedAt)
			task.Confidence = bestConfidence
			task.Intensity = bestIntensity

			if g.queue.Enqueue(task) {
				enqueued++
			}
		}
	}

	if enqueued > 0 {
		g.log.Infof("本轮生成 %d 个预热任务", enqueued)
	}
	return enqueued
}

// EnqueueBehaviorTasks 根据实体最近的行为序列生成即时预热任务。
// 返回成功入队的任务数。
func (g *Generator) EnqueueBehaviorTasks(entityID string, now time.Time) int {
	keys := g.predictor.PredictNextKeys(entityID, g.config.KeysPerPattern)
	if len(keys) == 0 {
		return 0
	}

	enqueued := 0
	predictedAt := now.Add(g.config.BehaviorLeadTime)

	for _, key := range keys {
		keyPattern := usage.KeyPattern(key)

		priority := PriorityHigh
		if _, isCritical := g.critical[keyPattern]; isCritical {
			priority = PriorityCritical
		}

		task := NewTask(key, keyPattern, priority, SourceBehavior, predictedAt)
		task.EntityID = entityID

		if g.queue.Enqueue(task) {
			enqueued++
		}
	}

	if enqueued > 0 {
		g.log.Debugf("实体 %s 触发 %d 个行为预热任务", entityID, enqueued)
	}
	return enqueued
}

// bestOffset 在偏移序列中找到预测热度达标且最高的时间点。
// 没有达标点时返回负偏移。
func (g *Generator) bestOffset(keyPattern string, now time.Time) (time.Duration, float64, float64) {
	best := time.Duration(-1)
	var bestIntensity, bestConfidence float64

	for offset := g.config.OffsetStart; offset <= g.config.OffsetEnd; offset += g.config.OffsetStep {
		intensity, confidence := g.analyzer.PredictUsage(keyPattern, now.Add(offset))
		if confidence < g.config.MinConfidence || intensity < g.config.MinIntensity {
			continue
		}
		if best < 0 || intensity > bestIntensity {
			best, bestIntensity, bestConfidence = offset, intensity, confidence
		}
	}

	return best, bestIntensity, bestConfidence
}

// priorityFor 按键模式和预测强度推导任务优先级
func (g *Generator) priorityFor(keyPattern string, intensity float64) Priority {
	if _, isCritical := g.critical[keyPattern]; isCritical {
		return PriorityCritical
	}
	if intensity >= 4*g.config.MinIntensity {
		return PriorityHigh
	}
	return PriorityMedium
}
