package script

import (
	"errors"
	"fmt"
)

// ParseFormatError 表示脚本中某一行的说话人/性别/台词格式不合法。
// 属于可重试错误。
type ParseFormatError struct {
	Line    int    // 从 1 开始的行号
	Content string // 出错的原始行
	Reason  string
}

func (e *ParseFormatError) Error() string {
	return fmt.Sprintf("[script] 第 %d 行格式错误: %s (%q)", e.Line, e.Reason, e.Content)
}

// ValidationError 表示脚本格式正确但内容不满足约束。
// Index 为出错台词的下标，整体性错误（如脚本为空）时为 -1。属于可重试错误。
type ValidationError struct {
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("[script] 校验失败: %s", e.Reason)
	}
	return fmt.Sprintf("[script] 第 %d 段台词校验失败: %s", e.Index+1, e.Reason)
}

// IsRecoverable 报告 err 是否为可通过重新生成脚本来恢复的错误。
func IsRecoverable(err error) bool {
	var pe *ParseFormatError
	var ve *ValidationError
	return errors.As(err, &pe) || errors.As(err, &ve)
}
