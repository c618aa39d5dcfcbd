package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/logger"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// ErrNoProvider 没有任何LLM提供方可用
var ErrNoProvider = errors.New("没有可用的LLM提供方")

// Summarizer 管理注册的LLM提供方，负责提供方选择与瞬时错误重试
type Summarizer struct {
	providers map[string]Provider
	order     []string
	current   Provider

	maxRetries     int
	retryBaseDelay time.Duration
	callTimeout    time.Duration
}

// NewSummarizer 注册groq与ollama两个提供方，并按配置选择首选提供方。
// 首选不可用时回退到注册顺序中第一个可用的提供方
func NewSummarizer(cfg *config.Config) *Summarizer {
	s := &Summarizer{
		providers:      make(map[string]Provider),
		maxRetries:     cfg.LLM.MaxRetries,
		retryBaseDelay: 2 * time.Second,
		callTimeout:    config.GetDuration(cfg.LLM.RequestTimeout, 60*time.Second),
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}

	s.register(NewGroqProvider(cfg.LLM.Groq))
	s.register(NewOllamaProvider(cfg.LLM.Ollama))
	s.autoSelect(cfg.LLM.Provider)
	return s
}

func (s *Summarizer) register(p Provider) {
	s.providers[p.Name()] = p
	s.order = append(s.order, p.Name())
}

// autoSelect 优先使用preferred，不可用时取注册顺序中第一个可用的提供方
func (s *Summarizer) autoSelect(preferred string) {
	if p, ok := s.providers[preferred]; ok && p.IsAvailable() {
		s.current = p
		logger.Info().Str("provider", p.Name()).Str("model", p.Model()).Msg("已选择LLM提供方")
		return
	}

	for _, name := range s.order {
		if p := s.providers[name]; p.IsAvailable() {
			s.current = p
			logger.Info().Str("provider", name).Str("model", p.Model()).Msg("已选择LLM提供方")
			return
		}
	}

	logger.Warn().Msg("没有可用的LLM提供方")
}

// SetProvider 切换当前提供方。名称未注册或提供方不可用时返回错误
func (s *Summarizer) SetProvider(name string) error {
	p, ok := s.providers[name]
	if !ok {
		return fmt.Errorf("未知的提供方: %s, 可选: %s", name, strings.Join(s.order, ", "))
	}
	if !p.IsAvailable() {
		return fmt.Errorf("提供方 %s 当前不可用", name)
	}

	s.current = p
	logger.Info().Str("provider", name).Str("model", p.Model()).Msg("已切换LLM提供方")
	return nil
}

// AvailableProviders 返回所有注册提供方及其可用状态
func (s *Summarizer) AvailableProviders() map[string]bool {
	out := make(map[string]bool, len(s.providers))
	for name, p := range s.providers {
		out[name] = p.IsAvailable()
	}
	return out
}

// ProviderNames 按注册顺序返回提供方名称
func (s *Summarizer) ProviderNames() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Provider 按名称取出注册的提供方
func (s *Summarizer) Provider(name string) (Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}

// CurrentProviderName 当前提供方名称，未选中任何提供方时返回 "none"
func (s *Summarizer) CurrentProviderName() string {
	if s.current == nil {
		return "none"
	}
	return s.current.Name()
}

// CurrentModel 当前提供方使用的模型名称，未选中时返回空字符串
func (s *Summarizer) CurrentModel() string {
	if s.current == nil {
		return ""
	}
	return s.current.Model()
}

// Summarize 用当前提供方生成摘要，对瞬时错误做指数退避重试。
// 尚未选中提供方时先尝试自动选择，仍无可用提供方则返回 ErrNoProvider
func (s *Summarizer) Summarize(ctx context.Context, req types.SummaryRequest) (string, error) {
	if s.current == nil {
		s.autoSelect("")
	}
	if s.current == nil {
		return "", ErrNoProvider
	}

	retryDelay := s.retryBaseDelay

	var summary string
	var err error

	for retry := 0; retry <= s.maxRetries; retry++ {
		// 重试前先检查上下文是否已取消
		if retry > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-time.After(retryDelay):
				retryDelay *= 2
				logger.Warn().Int("retry", retry).Str("provider", s.current.Name()).Msg("重试摘要调用")
			}
		}

		// 单次调用带超时，继承上游的取消信号
		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		summary, err = s.current.Summarize(callCtx, req)
		cancel()

		if err == nil {
			return summary, nil
		}

		if !isRetryableError(err) || retry >= s.maxRetries {
			return "", fmt.Errorf("摘要生成失败: %w", err)
		}
	}

	return "", fmt.Errorf("摘要生成失败: %w", err)
}

// isRetryableError 判断错误是否属于可重试的瞬时错误
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host")
}
