package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/listenbuddy/internal/logger"
)

// ConcatenationError 表示拼接失败。返回该错误时输出文件已被删除。
type ConcatenationError struct {
	Output string
	Err    error
}

func (e *ConcatenationError) Error() string {
	return fmt.Sprintf("[audio] 拼接 %s 失败: %v", e.Output, e.Err)
}

func (e *ConcatenationError) Unwrap() error { return e.Err }

// Concatenator 使用 ffmpeg concat demuxer 无损拼接同编码的 MP3 片段。
type Concatenator struct {
	runner Runner
	tmpDir string
}

// NewConcatenator 创建拼接器，清单文件写入 tmpDir（为空时用系统临时目录）。
func NewConcatenator(runner Runner, tmpDir string) *Concatenator {
	return &Concatenator{runner: runner, tmpDir: tmpDir}
}

// Concatenate 把 segments 依次拼接到 output。无论成败，清单文件和所有一次性片段都会被删除；
// 失败时残留的输出文件也会被删除。静音片段保留。
func (c *Concatenator) Concatenate(ctx context.Context, segments []Segment, output string) (err error) {
	defer RemoveDisposable(segments)
	defer func() {
		if err != nil {
			if rmErr := os.Remove(output); rmErr != nil && !os.IsNotExist(rmErr) {
				logger.Warnf("[audio] 删除不完整的输出失败: %s: %v", output, rmErr)
			}
			err = &ConcatenationError{Output: output, Err: err}
		}
	}()

	if len(segments) == 0 {
		return fmt.Errorf("没有可拼接的片段")
	}

	manifest, err := writeManifest(c.tmpDir, segments)
	if err != nil {
		return err
	}
	defer os.Remove(manifest)

	if err := c.runner.Run(ctx,
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-c", "copy",
		output,
	); err != nil {
		return err
	}

	if info, statErr := os.Stat(output); statErr != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg 未生成输出文件")
	}
	logger.Infof("[audio] 已拼接 %d 个片段 → %s", len(segments), output)
	return nil
}

// writeManifest 写出 concat demuxer 的文件清单，每行一个绝对路径。
func writeManifest(dir string, segments []Segment) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("创建拼接清单失败: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, s := range segments {
		abs, err := filepath.Abs(s.Path)
		if err != nil {
			abs = s.Path
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	if _, err := f.WriteString(b.String()); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("写入拼接清单失败: %w", err)
	}
	return f.Name(), nil
}
