package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider 通过 OpenAI 兼容的 chat completions 接口生成文本。
type OpenAIProvider struct {
	client *openai.Client
	model  string
	opts   GenerateOptions
}

// NewOpenAIProvider 创建一个 OpenAI 兼容的文本生成服务客户端。
// apiURL 为空时使用官方地址。
func NewOpenAIProvider(apiURL, apiKey, model string, opts GenerateOptions) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if apiURL != "" {
		cfg.BaseURL = strings.TrimRight(apiURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		opts:   opts,
	}
}

// GenerateText 发送单条 user 消息并返回第一条候选回复。
func (p *OpenAIProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: p.opts.Temperature,
		TopP:        p.opts.TopP,
		MaxTokens:   p.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("[llm] 模型 %s 请求失败: %w", p.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("[llm] 模型 %s 未返回任何候选", p.model)
	}

	content := resp.Choices[0].Message.Content
	logger.Debugf("[llm] 模型 %s 返回 %d 个字符，耗时 %v", p.model, len([]rune(content)), time.Since(start).Round(time.Millisecond))
	return content, nil
}

// statusCode 从 go-openai 的错误中取出 HTTP 状态码，取不到时返回 0。
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
