package behavior

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSequence 为实体按顺序记录一串行为
func recordSequence(p *Predictor, entityID string, activities []ActivityRecord) {
	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	for i, record := range activities {
		record.EntityID = entityID
		record.Timestamp = base.Add(time.Duration(i) * time.Minute)
		p.RecordActivity(record)
	}
}

func TestPredictor_LearnsSharedTransitions(t *testing.T) {
	p := NewPredictor(PredictorConfig{})

	// 两个实体都走过 查看房源 -> 打开邮件 -> 发起会话 的序列，
	// 发起会话时访问了同样的缓存键
	sequence := []ActivityRecord{
		{ActivityType: "property_view"},
		{ActivityType: "email_open"},
		{ActivityType: "conversation_start", CacheKeys: []string{"lead_scores:1", "conversation_context:1"}},
	}
	recordSequence(p, "lead-1", sequence)

	sequence[2].CacheKeys = []string{"lead_scores:2", "conversation_context:2"}
	recordSequence(p, "lead-2", sequence)

	// 第三个实体只走了前两步，预测应给出学到的后续键
	recordSequence(p, "lead-3", []ActivityRecord{
		{ActivityType: "property_view"},
		{ActivityType: "email_open"},
	})

	keys := p.PredictNextKeys("lead-3", 10)
	assert.ElementsMatch(t, []string{
		"lead_scores:1", "conversation_context:1",
		"lead_scores:2", "conversation_context:2",
	}, keys)

	assert.Equal(t, 3, p.EntitiesTracked())
	assert.Equal(t, 1, p.TransitionCount())
}

func TestPredictor_TooFewRecords(t *testing.T) {
	p := NewPredictor(PredictorConfig{})

	assert.Nil(t, p.PredictNextKeys("unknown", 10))

	recordSequence(p, "lead-1", []ActivityRecord{
		{ActivityType: "property_view"},
	})
	assert.Nil(t, p.PredictNextKeys("lead-1", 10), "单条记录不足以构成转移状态")
}

func TestPredictor_UnseenTransition(t *testing.T) {
	p := NewPredictor(PredictorConfig{})

	recordSequence(p, "lead-1", []ActivityRecord{
		{ActivityType: "property_view"},
		{ActivityType: "email_open"},
	})

	// 转移索引为空，没有可预测的键
	assert.Nil(t, p.PredictNextKeys("lead-1", 10))
}

func TestPredictor_PredictLimitAndOrder(t *testing.T) {
	p := NewPredictor(PredictorConfig{})

	// k1 被观测两次，k2 一次，预测按频次降序
	for i, keys := range [][]string{{"k1"}, {"k1", "k2"}} {
		entityID := fmt.Sprintf("lead-%d", i)
		recordSequence(p, entityID, []ActivityRecord{
			{ActivityType: "a"},
			{ActivityType: "b"},
			{ActivityType: "c", CacheKeys: keys},
		})
	}

	recordSequence(p, "lead-x", []ActivityRecord{
		{ActivityType: "a"},
		{ActivityType: "b"},
	})

	keys := p.PredictNextKeys("lead-x", 10)
	assert.Equal(t, []string{"k1", "k2"}, keys)

	limited := p.PredictNextKeys("lead-x", 1)
	assert.Equal(t, []string{"k1"}, limited)
}

func TestPredictor_IgnoresInvalidRecords(t *testing.T) {
	p := NewPredictor(PredictorConfig{})

	p.RecordActivity(ActivityRecord{ActivityType: "a"})
	p.RecordActivity(ActivityRecord{EntityID: "lead-1"})

	assert.Equal(t, 0, p.EntitiesTracked())
}

func TestPredictor_LogBounded(t *testing.T) {
	p := NewPredictor(PredictorConfig{MaxRecordsPerEntity: 5})

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		p.RecordActivityAt(base.Add(time.Duration(i)*time.Minute), ActivityRecord{
			EntityID:     "lead-1",
			ActivityType: fmt.Sprintf("act-%d", i),
		})
	}

	// 日志有界：预测状态由最近两条记录构成
	require.Equal(t, 1, p.EntitiesTracked())

	// 学习 (act-18, act-19) -> keys
	p.RecordActivityAt(base.Add(21*time.Minute), ActivityRecord{
		EntityID:     "lead-1",
		ActivityType: "final",
		CacheKeys:    []string{"k1"},
	})

	recordSequence(p, "lead-2", []ActivityRecord{
		{ActivityType: "act-18"},
		{ActivityType: "act-19"},
	})
	assert.Equal(t, []string{"k1"}, p.PredictNextKeys("lead-2", 10))
}

func TestPredictor_RetentionTrim(t *testing.T) {
	p := NewPredictor(PredictorConfig{Retention: time.Hour})

	base := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	p.RecordActivityAt(base, ActivityRecord{EntityID: "lead-1", ActivityType: "old"})
	p.RecordActivityAt(base.Add(2*time.Hour), ActivityRecord{EntityID: "lead-1", ActivityType: "recent"})

	// 超期记录被裁剪后不足两条，无法预测
	assert.Nil(t, p.PredictNextKeys("lead-1", 10))
}

func TestPredictor_TransitionIndexBounded(t *testing.T) {
	p := NewPredictor(PredictorConfig{MaxTransitions: 3})

	for i := 0; i < 6; i++ {
		recordSequence(p, fmt.Sprintf("lead-%d", i), []ActivityRecord{
			{ActivityType: fmt.Sprintf("a-%d", i)},
			{ActivityType: fmt.Sprintf("b-%d", i)},
			{ActivityType: "c", CacheKeys: []string{"k"}},
		})
	}

	assert.LessOrEqual(t, p.TransitionCount(), 3)
}
