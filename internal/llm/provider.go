package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zthsk/semantic-resume-screening/internal/types"
)

// 注册的提供方名称
const (
	ProviderGroq   = "groq"
	ProviderOllama = "ollama"
)

// summarySystemPrompt 摘要任务的系统提示词
const summarySystemPrompt = "Based on the resume, provide a summary of the candidate's skills, experience, and education."

// Provider 一个可以生成简历摘要的LLM提供方
type Provider interface {
	// Name 提供方标识，如 "groq"、"ollama"
	Name() string
	// Model 该提供方使用的模型名称
	Model() string
	// IsAvailable 提供方是否已配置可用
	IsAvailable() bool
	// Summarize 根据摘要请求生成一段摘要文本
	Summarize(ctx context.Context, req types.SummaryRequest) (string, error)
}

// chatSummarize 组装摘要消息并调用chat模型，返回去除首尾空白的摘要文本
func chatSummarize(ctx context.Context, chat model.ToolCallingChatModel, req types.SummaryRequest) (string, error) {
	messages := []*schema.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: req.ToPrompt()},
	}

	resp, err := chat.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
