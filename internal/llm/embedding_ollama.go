package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/zthsk/semantic-resume-screening/internal/config"
)

const defaultOllamaEmbedModel = "nomic-embed-text"

// OllamaEmbedder 通过Ollama原生 /api/embed 接口实现 embedding.Embedder
type OllamaEmbedder struct {
	model      string
	httpClient *http.Client
	apiURL     string
}

// NewOllamaEmbedder 创建本地Ollama向量化客户端
func NewOllamaEmbedder(cfg config.EmbeddingConfig) (*OllamaEmbedder, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("Ollama服务地址不能为空")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOllamaEmbedModel
	}

	return &OllamaEmbedder{
		model:      model,
		httpClient: &http.Client{},
		apiURL:     strings.TrimRight(base, "/") + "/api/embed",
	}, nil
}

type ollamaEmbedRequest struct {
	Model string      `json:"model"`
	Input interface{} `json:"input"` // string 或 []string
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// EmbedStrings 将文本转换为向量，实现 embedding.Embedder 接口
func (e *OllamaEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	options := embedding.GetCommonOptions(&embedding.Options{}, opts...)

	effectiveModel := e.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	var input interface{}
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	jsonData, err := json.Marshal(ollamaEmbedRequest{Model: effectiveModel, Input: input})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var parsed ollamaEmbedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("Ollama调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("解析响应JSON失败: %w, Body: %s", err, string(body))
	}

	if parsed.Error != "" {
		return nil, fmt.Errorf("Ollama返回错误, 状态码: %d, 错误: %s", resp.StatusCode, parsed.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	return parsed.Embeddings, nil
}

var _ embedding.Embedder = (*OllamaEmbedder)(nil)

// NewEmbedder 按配置构造向量化客户端
func NewEmbedder(cfg config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaEmbedder(cfg)
	case "openai":
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("不支持的embedding提供方: %s", cfg.Provider)
	}
}
