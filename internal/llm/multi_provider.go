package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/iabetor/listenbuddy/internal/logger"
)

// ModelConfig 描述一个 LLM 模型的连接信息。
type ModelConfig struct {
	Name   string
	APIURL string
	APIKey string
	Model  string
}

type providerEntry struct {
	name      string
	generator Generator
}

// MultiProvider 按优先级依次尝试多个模型，当前模型额度耗尽、限流或不可用时切换到下一个。
type MultiProvider struct {
	mu      sync.RWMutex
	entries []providerEntry
	current int
}

// NewMultiProvider 根据模型配置列表创建 MultiProvider。
func NewMultiProvider(configs []ModelConfig, opts GenerateOptions) (*MultiProvider, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("[llm] 至少需要一个模型配置")
	}
	entries := make([]providerEntry, 0, len(configs))
	for _, cfg := range configs {
		name := cfg.Name
		if name == "" {
			name = cfg.Model
		}
		entries = append(entries, providerEntry{
			name:      name,
			generator: NewOpenAIProvider(cfg.APIURL, cfg.APIKey, cfg.Model, opts),
		})
	}
	m := &MultiProvider{entries: entries}
	logger.Infof("[llm] 已加载 %d 个模型：%s", len(entries), m.names())
	return m, nil
}

// CurrentName 返回当前优先使用的模型名称。
func (m *MultiProvider) CurrentName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[m.current].name
}

// GenerateText 从当前模型开始尝试，可降级的错误会切换到下一个模型。
func (m *MultiProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.mu.RLock()
	start := m.current
	total := len(m.entries)
	m.mu.RUnlock()

	var lastErr error
	for i := 0; i < total; i++ {
		idx := (start + i) % total
		entry := m.entries[idx]

		text, err := entry.generator.GenerateText(ctx, prompt)
		if err == nil {
			if idx != start {
				m.mu.Lock()
				m.current = idx
				m.mu.Unlock()
				logger.Infof("[llm] 切换到模型 [%s]", entry.name)
			}
			return text, nil
		}

		lastErr = err
		if !IsTransient(err) {
			return "", err
		}
		logger.Warnf("[llm] 模型 [%s] 不可用，尝试下一个: %v", entry.name, err)
	}
	return "", fmt.Errorf("[llm] 所有模型均不可用: %w", lastErr)
}

// shouldFallback 判断错误是否应触发降级。上下文取消不降级。
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch code := statusCode(err); {
	case code == http.StatusPaymentRequired, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	case code != 0:
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range []string{"insufficient", "quota", "rate limit", "timeout", "connection refused", "no such host"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func (m *MultiProvider) names() string {
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.name
	}
	return strings.Join(names, " → ")
}
