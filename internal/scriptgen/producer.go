// Package scriptgen 调用文本生成服务产出播报脚本，并在脚本不合格时有限次重试。
package scriptgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/iabetor/listenbuddy/internal/llm"
	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/iabetor/listenbuddy/internal/question"
	"github.com/iabetor/listenbuddy/internal/script"
)

// DefaultMaxAttempts 是生成脚本的默认尝试次数。
const DefaultMaxAttempts = 3

// ErrGenerationExhausted 在所有尝试都未得到合格脚本时返回（经 GenerationExhaustedError 包装）。
var ErrGenerationExhausted = errors.New("[scriptgen] 多次尝试后仍未生成合格脚本")

// GenerationExhaustedError 携带尝试次数和最后一次失败的原因。
type GenerationExhaustedError struct {
	Attempts int
	Last     error
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("%v (共 %d 次): %v", ErrGenerationExhausted, e.Attempts, e.Last)
}

func (e *GenerationExhaustedError) Unwrap() []error {
	return []error{ErrGenerationExhausted, e.Last}
}

// Result 是一次成功生成的脚本及所用的尝试次数。
type Result struct {
	Block    script.Block
	Attempts int
}

// Producer 驱动 生成 → 解析 → 校验 的循环。
type Producer struct {
	gen         llm.Generator
	rules       script.Rules
	maxAttempts int
}

// NewProducer 创建 Producer。maxAttempts <= 0 时使用 DefaultMaxAttempts。
func NewProducer(gen llm.Generator, rules script.Rules, maxAttempts int) *Producer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if rules.Announcer == "" {
		rules.Announcer = script.DefaultAnnouncer
	}
	return &Producer{gen: gen, rules: rules, maxAttempts: maxAttempts}
}

// Produce 为题目生成合格的脚本。每次尝试发送完全相同的提示词，不做退避。
// 只有解析/校验失败和暂时性的服务故障会消耗下一次尝试，其余错误立即返回。
func (p *Producer) Produce(ctx context.Context, q *question.Question) (*Result, error) {
	prompt, err := question.Prompt(q, p.rules.Announcer)
	if err != nil {
		return nil, err
	}

	var last error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		block, err := p.attempt(ctx, prompt)
		if err == nil {
			logger.Infof("[scriptgen] 第 %d 次尝试生成脚本成功，共 %d 段台词", attempt, len(block))
			return &Result{Block: block, Attempts: attempt}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !script.IsRecoverable(err) && !llm.IsTransient(err) {
			logger.Errorf("[scriptgen] 第 %d 次尝试遇到不可重试的错误: %v", attempt, err)
			return nil, fmt.Errorf("[scriptgen] 生成脚本失败: %w", err)
		}

		last = err
		logger.Warnf("[scriptgen] 第 %d/%d 次尝试失败: %v", attempt, p.maxAttempts, err)
	}

	return nil, &GenerationExhaustedError{Attempts: p.maxAttempts, Last: last}
}

func (p *Producer) attempt(ctx context.Context, prompt string) (script.Block, error) {
	raw, err := p.gen.GenerateText(ctx, prompt)
	if err != nil {
		return nil, err
	}
	block, err := script.Parse(raw)
	if err != nil {
		logger.Debugf("[scriptgen] 无法解析的回复: %s", raw)
		return nil, err
	}
	if err := script.Validate(block, p.rules); err != nil {
		return nil, err
	}
	return block, nil
}
