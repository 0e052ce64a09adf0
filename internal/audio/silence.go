package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/iabetor/listenbuddy/internal/logger"
)

// SilenceCache 按时长缓存静音 MP3 文件。文件名只由时长决定，
// 同一目录下的多次运行共享这些文件，流水线从不删除它们。
type SilenceCache struct {
	dir        string
	runner     Runner
	sampleRate int
	bitrate    string

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewSilenceCache 创建静音缓存。sampleRate 和 bitrate 应与合成音频一致，才能无损拼接。
func NewSilenceCache(dir string, runner Runner, sampleRate int, bitrate string) *SilenceCache {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if bitrate == "" {
		bitrate = "48k"
	}
	return &SilenceCache{
		dir:        dir,
		runner:     runner,
		sampleRate: sampleRate,
		bitrate:    bitrate,
		locks:      make(map[int]*sync.Mutex),
	}
}

// Path 返回时长 ms 对应的缓存文件路径。
func (c *SilenceCache) Path(ms int) string {
	return filepath.Join(c.dir, fmt.Sprintf("silence_%dms.mp3", ms))
}

// Get 返回时长 ms 的静音片段，文件不存在时生成一次。
func (c *SilenceCache) Get(ctx context.Context, ms int) (Segment, error) {
	if ms <= 0 {
		return Segment{}, fmt.Errorf("[audio] 静音时长必须为正数: %d", ms)
	}

	lock := c.lockFor(ms)
	lock.Lock()
	defer lock.Unlock()

	path := c.Path(ms)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return Segment{Path: path, Kind: Silence}, nil
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return Segment{}, fmt.Errorf("[audio] 创建静音缓存目录失败: %w", err)
	}

	tmp := path + ".tmp"
	defer os.Remove(tmp)

	seconds := strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64)
	err := c.runner.Run(ctx,
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=mono:d=%s", c.sampleRate, seconds),
		"-c:a", "libmp3lame",
		"-b:a", c.bitrate,
		"-f", "mp3",
		tmp,
	)
	if err != nil {
		return Segment{}, fmt.Errorf("[audio] 生成 %dms 静音失败: %w", ms, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return Segment{}, fmt.Errorf("[audio] 保存静音文件失败: %w", err)
	}

	logger.Infof("[audio] 已生成静音缓存: %s", path)
	return Segment{Path: path, Kind: Silence}, nil
}

func (c *SilenceCache) lockFor(ms int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[ms]
	if !ok {
		l = &sync.Mutex{}
		c.locks[ms] = l
	}
	return l
}
