// Package question 定义听力题的输入结构以及生成播报脚本所用的提示词。
package question

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Question 是一道结构化的听力题。
type Question struct {
	Introduction string   `json:"Introduction"`
	Conversation string   `json:"Conversation"`
	Question     string   `json:"Question"`
	Options      []string `json:"Options,omitempty"`
}

// Validate 检查题目是否至少包含对话和问题。
func (q *Question) Validate() error {
	if strings.TrimSpace(q.Conversation) == "" {
		return fmt.Errorf("[question] 缺少对话内容")
	}
	if strings.TrimSpace(q.Question) == "" {
		return fmt.Errorf("[question] 缺少问题")
	}
	return nil
}

// Load 从 JSON 文件读取题目。
func Load(path string) (*Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[question] 读取题目文件 %s 失败: %w", path, err)
	}
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("[question] 解析题目文件 %s 失败: %w", path, err)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return &q, nil
}
