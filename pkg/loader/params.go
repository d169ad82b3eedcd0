package loader

import (
	"fmt"
	"sort"
	"strings"
)

// 内置的数据类别名称
const (
	KindLeadScore           = "lead_scores"
	KindConversationContext = "conversation_context"
	KindPropertyMatch       = "property_matches"
)

// LeadScoreParams 线索评分数据的加载参数
type LeadScoreParams struct {
	LeadID string
}

func (p LeadScoreParams) Kind() string { return KindLeadScore }

func (p LeadScoreParams) CacheKey() string {
	return fmt.Sprintf("%s:%s", KindLeadScore, p.LeadID)
}

// ConversationContextParams 会话上下文数据的加载参数
type ConversationContextParams struct {
	ContactID string
	Stage     string // 会话阶段，可为空
}

func (p ConversationContextParams) Kind() string { return KindConversationContext }

func (p ConversationContextParams) CacheKey() string {
	if p.Stage != "" {
		return fmt.Sprintf("%s:%s:%s", KindConversationContext, p.ContactID, p.Stage)
	}
	return fmt.Sprintf("%s:%s", KindConversationContext, p.ContactID)
}

// PropertyMatchParams 房源匹配数据的加载参数
type PropertyMatchParams struct {
	LeadID string
	Area   string // 目标区域，可为空
}

func (p PropertyMatchParams) Kind() string { return KindPropertyMatch }

func (p PropertyMatchParams) CacheKey() string {
	if p.Area != "" {
		return fmt.Sprintf("%s:%s:%s", KindPropertyMatch, p.LeadID, p.Area)
	}
	return fmt.Sprintf("%s:%s", KindPropertyMatch, p.LeadID)
}

// GenericParams 任意类别的通用加载参数，用于未内置的数据类别
type GenericParams struct {
	DataKind string
	Args     map[string]string
}

func (p GenericParams) Kind() string { return p.DataKind }

func (p GenericParams) CacheKey() string {
	if len(p.Args) == 0 {
		return p.DataKind
	}

	keys := make([]string, 0, len(p.Args))
	for k := range p.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, p.Args[k])
	}
	return p.DataKind + ":" + strings.Join(parts, ":")
}

// ParamsFromKey 从缓存键还原通用加载参数。
// 预热执行器凭键重建参数时使用；内置类别的加载器也接受它，
// 只要键里的字段顺序与 CacheKey 一致。
func ParamsFromKey(key string) GenericParams {
	parts := strings.Split(key, ":")
	if len(parts) == 1 {
		return GenericParams{DataKind: key}
	}

	args := make(map[string]string, len(parts)-1)
	for i, part := range parts[1:] {
		args[fmt.Sprintf("arg%d", i)] = part
	}
	return GenericParams{DataKind: parts[0], Args: args}
}
