package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// OllamaProvider 基于本地Ollama（OpenAI兼容chat接口）的摘要提供方
type OllamaProvider struct {
	model string
	chat  *OpenAIChatModel
}

// NewOllamaProvider 创建Ollama提供方。可用性只取决于是否配置了服务地址，
// 不主动探测本地服务
func NewOllamaProvider(cfg config.OllamaConfig) *OllamaProvider {
	p := &OllamaProvider{model: cfg.Model}

	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return p
	}

	apiURL := strings.TrimRight(base, "/") + "/v1/chat/completions"
	chat, err := NewOpenAIChatModel(apiURL, "", cfg.Model, cfg.MaxTokens, cfg.Temperature)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化Ollama chat模型失败")
		return p
	}
	p.chat = chat
	return p
}

// Name 实现 Provider 接口
func (p *OllamaProvider) Name() string { return ProviderOllama }

// Model 实现 Provider 接口
func (p *OllamaProvider) Model() string { return p.model }

// IsAvailable 实现 Provider 接口
func (p *OllamaProvider) IsAvailable() bool { return p.chat != nil }

// Summarize 实现 Provider 接口
func (p *OllamaProvider) Summarize(ctx context.Context, req types.SummaryRequest) (string, error) {
	if p.chat == nil {
		return "", fmt.Errorf("Ollama服务地址未配置")
	}
	return chatSummarize(ctx, p.chat, req)
}

var _ Provider = (*OllamaProvider)(nil)
