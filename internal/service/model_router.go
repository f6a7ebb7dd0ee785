package service

import "jurisai-go/internal/config"

// Tier 是模型档位。
type Tier string

const (
	TierHigh Tier = "high"
	TierLow  Tier = "low"
)

// Tool 是生成调用可启用的工具。
type Tool string

const ToolGoogleSearch Tool = "googleSearch"

// ModelConfig 是一轮对话选用的模型与参数。
type ModelConfig struct {
	Model           string
	Tier            Tier
	Tools           []Tool
	ReasoningBudget int32
}

// HasTool 报告是否启用了指定工具。
func (c ModelConfig) HasTool(t Tool) bool {
	for _, tool := range c.Tools {
		if tool == t {
			return true
		}
	}
	return false
}

// ModelRouter 根据对话状态与用户开关选择模型。
type ModelRouter struct {
	highTier        string
	lowTier         string
	reasoningBudget int32
}

// NewModelRouter 从配置创建 ModelRouter。
func NewModelRouter(cfg config.GeminiConfig) *ModelRouter {
	r := &ModelRouter{
		highTier:        cfg.HighTierModel,
		lowTier:         cfg.LowTierModel,
		reasoningBudget: cfg.ReasoningBudget,
	}
	if r.highTier == "" {
		r.highTier = "gemini-3-pro-preview"
	}
	if r.lowTier == "" {
		r.lowTier = "gemini-2.5-flash"
	}
	if r.reasoningBudget <= 0 {
		r.reasoningBudget = 16000
	}
	return r
}

// SelectConfig 按顺序匹配第一条规则：
// 推理模式使用高档模型且不带工具（即使开启了搜索）；
// 有附件或历史时使用高档模型，开启搜索则带搜索工具；
// 仅开启搜索时使用低档模型加搜索；其余使用低档模型。
func (r *ModelRouter) SelectConfig(hasHistory, hasAnyAttachments, reasoning, search bool) ModelConfig {
	switch {
	case reasoning:
		return ModelConfig{Model: r.highTier, Tier: TierHigh, ReasoningBudget: r.reasoningBudget}
	case hasAnyAttachments || hasHistory:
		cfg := ModelConfig{Model: r.highTier, Tier: TierHigh}
		if search {
			cfg.Tools = []Tool{ToolGoogleSearch}
		}
		return cfg
	case search:
		return ModelConfig{Model: r.lowTier, Tier: TierLow, Tools: []Tool{ToolGoogleSearch}}
	default:
		return ModelConfig{Model: r.lowTier, Tier: TierLow}
	}
}
