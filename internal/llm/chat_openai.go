package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zthsk/semantic-resume-screening/internal/logger"
)

//
// OpenAI兼容接口的请求/响应结构
//

type openAIToolFunctionParamsProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

type openAIToolFunctionParams struct {
	Type       string                                      `json:"type"`
	Properties map[string]openAIToolFunctionParamsProperty `json:"properties"`
	Required   []string                                    `json:"required,omitempty"`
}

type openAIFunction struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  openAIToolFunctionParams `json:"parameters"`
}

type openAITool struct {
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIChatRequest struct {
	Model       string            `json:"model"`
	Messages    []*schema.Message `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	Tools       []openAITool      `json:"tools,omitempty"`
}

type openAIChatMessage struct {
	Role string `json:"role"`
	// Content 在返回tool_calls时可能为null
	Content   *string              `json:"content"`
	ToolCalls []openAIToolCallData `json:"tool_calls,omitempty"`
}

type openAIToolCallData struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatChoice struct {
	Index        int               `json:"index"`
	Message      openAIChatMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

type openAIChatResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
}

// OpenAIChatModel 通过任意OpenAI兼容的chat completions接口实现
// eino 的 model.ToolCallingChatModel。Groq云端与本地Ollama共用这一实现，
// 区别只在接口地址、鉴权与模型名。
type OpenAIChatModel struct {
	apiURL      string
	apiKey      string // 为空时不携带Authorization头（如本地Ollama）
	modelName   string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	boundTools  []openAITool
}

// NewOpenAIChatModel 创建一个OpenAI兼容的chat模型客户端
func NewOpenAIChatModel(apiURL, apiKey, modelName string, maxTokens int, temperature float64) (*OpenAIChatModel, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("chat接口地址不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		return nil, fmt.Errorf("模型名称不能为空")
	}

	return &OpenAIChatModel{
		apiURL:      apiURL,
		apiKey:      apiKey,
		modelName:   modelName,
		maxTokens:   maxTokens,
		temperature: temperature,
		httpClient:  &http.Client{},
		boundTools:  make([]openAITool, 0),
	}, nil
}

// Generate 实现 model.ChatModel 接口
func (m *OpenAIChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	// 工具绑定通过 WithTools/BindTools 完成，这里不消费通用选项
	for _, opt := range opts {
		_ = opt
	}

	reqPayload := openAIChatRequest{
		Model:       m.modelName,
		Messages:    messages,
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	}
	if len(m.boundTools) > 0 {
		reqPayload.Tools = m.boundTools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	logger.Debug().
		Str("url", m.apiURL).
		Str("model", m.modelName).
		Int("messages", len(messages)).
		Msg("发送chat completions请求")

	httpResp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API请求失败, 状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var chatResp openAIChatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return nil, fmt.Errorf("反序列化API响应失败: %w, 响应体: %s", err, string(bodyBytes))
	}

	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("API响应中没有choices: %s", string(bodyBytes))
	}

	apiMessage := chatResp.Choices[0].Message
	content := ""
	if apiMessage.Content != nil {
		content = *apiMessage.Content
	}

	result := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: content,
	}
	if result.Role == "" {
		result.Role = schema.RoleType("assistant")
	}

	if len(apiMessage.ToolCalls) > 0 {
		result.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			result.ToolCalls[i] = schema.ToolCall{
				ID: tc.ID,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	return result, nil
}

// Stream 实现 model.ChatModel 接口。摘要场景只用同步调用，流式未实现
func (m *OpenAIChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("OpenAIChatModel 的 Stream 方法未实现")
}

// BindTools 记录工具定义。schema.ParamsOneOf 没有导出参数映射的途径，
// 参数schema统一置为空对象
func (m *OpenAIChatModel) BindTools(tools []*schema.ToolInfo) error {
	m.boundTools = make([]openAITool, 0, len(tools))
	for _, info := range tools {
		if info == nil {
			continue
		}
		m.boundTools = append(m.boundTools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        info.Name,
				Description: info.Desc,
				Parameters: openAIToolFunctionParams{
					Type:       "object",
					Properties: map[string]openAIToolFunctionParamsProperty{},
				},
			},
		})
	}
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (m *OpenAIChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := m.BindTools(tools); err != nil {
		return nil, err
	}
	return m, nil
}

var _ model.ChatModel = (*OpenAIChatModel)(nil)
var _ model.ToolCallingChatModel = (*OpenAIChatModel)(nil)
