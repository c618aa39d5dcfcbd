package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// GroqProvider 基于Groq云端推理（OpenAI兼容接口）的摘要提供方
type GroqProvider struct {
	model string
	chat  *OpenAIChatModel
}

// NewGroqProvider 创建Groq提供方。未配置API密钥时提供方存在但不可用
func NewGroqProvider(cfg config.GroqConfig) *GroqProvider {
	p := &GroqProvider{model: cfg.Model}

	if strings.TrimSpace(cfg.APIKey) == "" {
		return p
	}

	chat, err := NewOpenAIChatModel(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化Groq chat模型失败")
		return p
	}
	p.chat = chat
	return p
}

// Name 实现 Provider 接口
func (p *GroqProvider) Name() string { return ProviderGroq }

// Model 实现 Provider 接口
func (p *GroqProvider) Model() string { return p.model }

// IsAvailable 实现 Provider 接口
func (p *GroqProvider) IsAvailable() bool { return p.chat != nil }

// Summarize 实现 Provider 接口
func (p *GroqProvider) Summarize(ctx context.Context, req types.SummaryRequest) (string, error) {
	if p.chat == nil {
		return "", fmt.Errorf("Groq API密钥未配置")
	}
	return chatSummarize(ctx, p.chat, req)
}

var _ Provider = (*GroqProvider)(nil)
