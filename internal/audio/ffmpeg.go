package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/iabetor/listenbuddy/internal/logger"
)

// Runner 执行一次外部音频处理命令（ffmpeg），非零退出视为错误。
type Runner interface {
	Run(ctx context.Context, args ...string) error
}

// FFmpeg 通过子进程调用 ffmpeg。
type FFmpeg struct {
	Path string
}

// NewFFmpeg 创建 ffmpeg 执行器，path 为空时从 PATH 查找。
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

// Run 执行 ffmpeg，失败时把 stderr 的末尾附在错误里。
func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-y"}, args...)
	logger.Debugf("[audio] %s %s", f.Path, strings.Join(full, " "))

	cmd := exec.CommandContext(ctx, f.Path, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("[audio] ffmpeg 执行失败: %w, stderr: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

// tail 保留 s 末尾至多 n 个字节，从字符边界处截断。
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return "..." + s[i:]
}
