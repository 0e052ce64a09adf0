// Package transcript 在生成的音频旁写出对应的文字稿，可选附带机器翻译。
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/iabetor/listenbuddy/internal/script"
)

// Writer 生成文字稿。translator 为 nil 时只输出原文。
type Writer struct {
	translator Translator
	source     string
	target     string
}

// NewWriter 创建文字稿写入器。source 是脚本语言（如 "ar"），target 是译文语言。
func NewWriter(translator Translator, source, target string) *Writer {
	return &Writer{translator: translator, source: source, target: target}
}

// PathFor 返回音频文件对应的文字稿路径：同目录、同名、扩展名为 .txt。
func PathFor(audioPath string) string {
	return strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".txt"
}

// Write 把 block 渲染为文字稿写到 audioPath 旁边，返回文字稿路径。
// 单句翻译失败只记录警告，该句不附译文。
func (w *Writer) Write(ctx context.Context, audioPath string, block script.Block) (string, error) {
	var translations []string
	if w.translator != nil {
		translations = make([]string, len(block))
		for i, t := range block {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			tr, err := w.translator.Translate(ctx, t.Text, w.source, w.target)
			if err != nil {
				logger.Warnf("[transcript] 第 %d 句翻译失败: %v", i+1, err)
				continue
			}
			translations[i] = tr
		}
	}

	path := PathFor(audioPath)
	if err := os.WriteFile(path, []byte(Render(block, translations)), 0644); err != nil {
		return "", fmt.Errorf("[transcript] 写入文字稿失败: %w", err)
	}
	logger.Infof("[transcript] 文字稿已写入: %s", path)
	return path, nil
}

// Render 按台词顺序渲染文字稿，每句一行 "Speaker (gender): text"，
// 有译文时在下一行缩进给出。
func Render(block script.Block, translations []string) string {
	var b strings.Builder
	for i, t := range block {
		fmt.Fprintf(&b, "%s (%s): %s\n", t.Speaker, t.Gender, t.Text)
		if i < len(translations) && translations[i] != "" {
			fmt.Fprintf(&b, "    %s\n", translations[i])
		}
	}
	return b.String()
}
