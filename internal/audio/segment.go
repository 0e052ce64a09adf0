package audio

import (
	"os"

	"github.com/iabetor/listenbuddy/internal/logger"
)

// SegmentKind 区分合成的台词音频和缓存的静音。
type SegmentKind int

const (
	Speech SegmentKind = iota
	Silence
)

func (k SegmentKind) String() string {
	if k == Silence {
		return "silence"
	}
	return "speech"
}

// Segment 是待拼接的一个音频片段。Index 是它在最终序列中的位置。
type Segment struct {
	Index int
	Path  string
	Kind  SegmentKind
}

// Disposable 报告片段在拼接后是否应删除。静音片段会被缓存复用，不删除。
func (s Segment) Disposable() bool {
	return s.Kind == Speech
}

// RemoveDisposable 删除所有一次性片段的文件，已不存在的文件忽略。
func RemoveDisposable(segments []Segment) {
	for _, s := range segments {
		if !s.Disposable() || s.Path == "" {
			continue
		}
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			logger.Warnf("[audio] 删除临时片段失败: %s: %v", s.Path, err)
		}
	}
}
