package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zthsk/semantic-resume-screening/internal/config"
)

func embeddingResponseJSON(vectors [][]float64) string {
	data := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		data[i] = map[string]any{"object": "embedding", "embedding": v, "index": i}
	}
	body, _ := json.Marshal(map[string]any{
		"object": "list",
		"data":   data,
		"model":  "test-model",
		"usage":  map[string]any{"prompt_tokens": 3, "total_tokens": 3},
	})
	return string(body)
}

// TestOpenAIEmbedderValidation 必填配置校验
func TestOpenAIEmbedderValidation(t *testing.T) {
	_, err := NewOpenAIEmbedder(config.EmbeddingConfig{Model: "m"})
	assert.Error(t, err, "缺少接口地址应报错")

	_, err = NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: "http://localhost:1234"})
	assert.Error(t, err, "缺少模型名称应报错")
}

// TestOpenAIEmbedderSingleText 单条文本以字符串形式发送
func TestOpenAIEmbedderSingleText(t *testing.T) {
	var captured map[string]any
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(embeddingResponseJSON([][]float64{{0.1, 0.2, 0.3}})))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{
		APIKey: "sk-test", BaseURL: srv.URL, Model: "text-embedding-3-small", Dimensions: 512,
	})
	require.NoError(t, err)
	assert.Equal(t, 512, e.GetDimensions())

	out, err := e.EmbedStrings(context.Background(), []string{"hello"})
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, out[0])

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "hello", captured["input"], "单条输入应为字符串而非数组")
	assert.Equal(t, "text-embedding-3-small", captured["model"])
	assert.Equal(t, float64(512), captured["dimensions"])
}

// TestOpenAIEmbedderBatch 多条文本以数组形式发送，未配置维度时省略dimensions
func TestOpenAIEmbedderBatch(t *testing.T) {
	var captured map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(embeddingResponseJSON([][]float64{{1, 2}, {3, 4}})))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	out, err := e.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	input, ok := captured["input"].([]any)
	require.True(t, ok, "多条输入应为数组")
	assert.Len(t, input, 2)

	_, hasDim := captured["dimensions"]
	assert.False(t, hasDim)
}

// TestOpenAIEmbedderModelOverride 调用级选项可覆盖默认模型
func TestOpenAIEmbedderModelOverride(t *testing.T) {
	var captured map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(embeddingResponseJSON([][]float64{{1}})))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "default-model"})
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"x"}, embedding.WithModel("other-model"))
	require.NoError(t, err)
	assert.Equal(t, "other-model", captured["model"])
}

// TestOpenAIEmbedderEmptyInput 空输入直接返回，不发起HTTP调用
func TestOpenAIEmbedderEmptyInput(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	out, err := e.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

// TestOpenAIEmbedderHTTPError 非200响应解析API错误详情
func TestOpenAIEmbedderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API Key")
	assert.Contains(t, err.Error(), "401")
}

// TestOpenAIEmbedderErrorInOKBody 200响应体内的API错误同样视为失败
func TestOpenAIEmbedderErrorInOKBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list","data":[],"error":{"message":"too many inputs","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(config.EmbeddingConfig{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many inputs")
}

// TestOllamaEmbedderEmbed 原生 /api/embed 接口，无鉴权头，模型缺省为 nomic-embed-text
func TestOllamaEmbedderEmbed(t *testing.T) {
	var captured map[string]any
	var gotPath, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.5,0.6],[0.7,0.8]]}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(config.EmbeddingConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	out, err := e.EmbedStrings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0.5, 0.6}, {0.7, 0.8}}, out)
	assert.Equal(t, "/api/embed", gotPath)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "nomic-embed-text", captured["model"])
}

// TestOllamaEmbedderError 错误响应透出error字段
func TestOllamaEmbedderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"missing\" not found"}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(config.EmbeddingConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.EmbedStrings(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// TestNewEmbedderFactory 按配置分发到对应实现
func TestNewEmbedderFactory(t *testing.T) {
	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "ollama", BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.IsType(t, (*OllamaEmbedder)(nil), e)

	e, err = NewEmbedder(config.EmbeddingConfig{Provider: "openai", BaseURL: "http://localhost:1234", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, (*OpenAIEmbedder)(nil), e)

	_, err = NewEmbedder(config.EmbeddingConfig{Provider: "cohere"})
	assert.Error(t, err)
}
