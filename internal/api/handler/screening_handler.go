package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/llm"
	"github.com/zthsk/semantic-resume-screening/internal/parser"
	"github.com/zthsk/semantic-resume-screening/internal/storage"
)

// 路由层据此映射HTTP状态码: 参数问题400、依赖缺失503、记录不存在404，
// 其余一律500
var (
	ErrInvalidRequest    = errors.New("请求参数无效")
	ErrDependencyMissing = errors.New("服务依赖未配置")
	ErrNotFound          = errors.New("记录不存在")
)

// ScreeningHandler 简历筛选服务的业务处理器。
// 同步接口(解析、生成、匹配)只依赖cfg与summarizer；
// 异步接单与状态查询还需要storage中的持久化后端
type ScreeningHandler struct {
	cfg          *config.Config
	storage      *storage.Storage
	summarizer   *llm.Summarizer
	embedder     embedding.Embedder
	resumeParser *parser.ResumeParser
	pdfExtractor *parser.PDFExtractor
}

// NewScreeningHandler 创建处理器。storage与embedder允许为nil，
// 相应能力在请求时报依赖缺失
func NewScreeningHandler(ctx context.Context, cfg *config.Config, store *storage.Storage, summarizer *llm.Summarizer, embedder embedding.Embedder) (*ScreeningHandler, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置未初始化")
	}
	if summarizer == nil {
		return nil, fmt.Errorf("摘要生成器未初始化")
	}

	pdfExtractor, err := parser.NewPDFExtractor(ctx)
	if err != nil {
		return nil, fmt.Errorf("初始化PDF提取器失败: %w", err)
	}

	return &ScreeningHandler{
		cfg:          cfg,
		storage:      store,
		summarizer:   summarizer,
		embedder:     embedder,
		resumeParser: parser.NewResumeParser(),
		pdfExtractor: pdfExtractor,
	}, nil
}

// ProviderInfo 单个LLM提供方的状态
type ProviderInfo struct {
	Provider  string `json:"provider"`
	Available bool   `json:"available"`
	Model     string `json:"model,omitempty"`
}

// ListProviders 按注册顺序返回所有提供方及其可用状态。
// 模型名称只在提供方可用时返回
func (h *ScreeningHandler) ListProviders() []ProviderInfo {
	names := h.summarizer.ProviderNames()
	out := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		p, ok := h.summarizer.Provider(name)
		if !ok {
			continue
		}
		info := ProviderInfo{Provider: name, Available: p.IsAvailable()}
		if info.Available {
			info.Model = p.Model()
		}
		out = append(out, info)
	}
	return out
}

// SetProviderResponse 切换提供方的结果
type SetProviderResponse struct {
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Message  string `json:"message"`
}

// SwitchProvider 切换当前LLM提供方，未知或不可用的提供方返回参数错误
func (h *ScreeningHandler) SwitchProvider(name string) (*SetProviderResponse, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: 缺少provider字段", ErrInvalidRequest)
	}
	if err := h.summarizer.SetProvider(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return &SetProviderResponse{
		Success:  true,
		Provider: h.summarizer.CurrentProviderName(),
		Model:    h.summarizer.CurrentModel(),
		Message:  fmt.Sprintf("LLM提供方已切换为 %s", name),
	}, nil
}
