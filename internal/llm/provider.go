package llm

import "context"

// Generator 是文本生成服务的抽象：输入提示词，返回模型的完整回复。
// 回复不保证符合任何格式，调用方自行解析和校验。
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// GenerateOptions 控制采样参数。
type GenerateOptions struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}
