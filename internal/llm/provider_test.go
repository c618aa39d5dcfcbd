package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/types"
)

func sampleSummaryRequest() types.SummaryRequest {
	resume := types.NewResume()
	resume.Name = "Jordan Smith"
	resume.Title = "Backend Engineer"
	return types.NewSummaryRequest(resume)
}

// TestGroqProviderUnavailableWithoutKey 未配置API密钥时Groq不可用
func TestGroqProviderUnavailableWithoutKey(t *testing.T) {
	p := NewGroqProvider(config.GroqConfig{
		BaseURL: "https://api.groq.com/openai/v1/chat/completions",
		Model:   "llama3-8b-8192",
	})

	assert.Equal(t, "groq", p.Name())
	assert.False(t, p.IsAvailable())

	_, err := p.Summarize(context.Background(), sampleSummaryRequest())
	assert.Error(t, err)
}

// TestGroqProviderSummarize 验证系统提示词、请求参数与摘要trim
func TestGroqProviderSummarize(t *testing.T) {
	var captured capturedChatRequest
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(chatCompletionJSON("  Jordan Smith is a seasoned backend engineer.\n")))
	}))
	defer srv.Close()

	p := NewGroqProvider(config.GroqConfig{
		APIKey:      "gsk-test",
		BaseURL:     srv.URL,
		Model:       "llama3-8b-8192",
		MaxTokens:   500,
		Temperature: 0.3,
	})
	require.True(t, p.IsAvailable())
	assert.Equal(t, "llama3-8b-8192", p.Model())

	summary, err := p.Summarize(context.Background(), sampleSummaryRequest())
	require.NoError(t, err)

	assert.Equal(t, "Jordan Smith is a seasoned backend engineer.", summary, "摘要应去除首尾空白")
	assert.Equal(t, "Bearer gsk-test", gotAuth)
	assert.Equal(t, 500, captured.MaxTokens)
	assert.InDelta(t, 0.3, captured.Temperature, 1e-9)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, summarySystemPrompt, captured.Messages[0].Content)
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Contains(t, captured.Messages[1].Content, "Resume Data:")
	assert.Contains(t, captured.Messages[1].Content, "Jordan Smith")
}

// TestOllamaProviderUnavailableWithoutBaseURL 未配置服务地址时Ollama不可用
func TestOllamaProviderUnavailableWithoutBaseURL(t *testing.T) {
	p := NewOllamaProvider(config.OllamaConfig{Model: "qwen2.5:7b"})

	assert.Equal(t, "ollama", p.Name())
	assert.False(t, p.IsAvailable())

	_, err := p.Summarize(context.Background(), sampleSummaryRequest())
	assert.Error(t, err)
}

// TestOllamaProviderSummarize 请求应落在 /v1/chat/completions 且不带鉴权头
func TestOllamaProviderSummarize(t *testing.T) {
	var gotPath, gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(chatCompletionJSON("Local summary.")))
	}))
	defer srv.Close()

	// 带末尾斜杠的地址也应拼出规范路径
	p := NewOllamaProvider(config.OllamaConfig{BaseURL: srv.URL + "/", Model: "qwen2.5:7b"})
	require.True(t, p.IsAvailable())

	summary, err := p.Summarize(context.Background(), sampleSummaryRequest())
	require.NoError(t, err)

	assert.Equal(t, "Local summary.", summary)
	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Empty(t, gotAuth)
}
