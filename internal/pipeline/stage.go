package pipeline

import (
	"fmt"
	"sync"

	"github.com/iabetor/listenbuddy/internal/logger"
)

// Stage 表示一次生成所处的阶段。
type Stage int

const (
	// StageIdle — 未开始或已复位。
	StageIdle Stage = iota
	// StageScript — 生成并校验播报脚本。
	StageScript
	// StageSilence — 准备长/短停顿的静音片段。
	StageSilence
	// StageSynthesis — 逐段合成台词。
	StageSynthesis
	// StageConcat — 编排并拼接最终音频。
	StageConcat
	// StageDone — 输出文件已生成。
	StageDone
)

var stageNames = [...]string{
	"idle",
	"script",
	"silence",
	"synthesis",
	"concat",
	"done",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// StageError 标明失败发生在哪个阶段，Err 是原始错误。
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("[pipeline] %s 阶段失败: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Progress 记录一次生成的阶段推进，线程安全。
type Progress struct {
	mu       sync.RWMutex
	current  Stage
	onChange func(from, to Stage)
}

// NewProgress 创建初始阶段为 Idle 的进度。
func NewProgress() *Progress {
	return &Progress{current: StageIdle}
}

// SetOnChange 注册阶段变化时的回调函数。
func (p *Progress) SetOnChange(fn func(from, to Stage)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Current 返回当前阶段。
func (p *Progress) Current() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Advance 尝试切换阶段。只允许按顺序前进一步：
//
//	Idle → Script → Silence → Synthesis → Concat → Done
//
// 任何阶段都可以回到 Idle（失败或开始下一次生成）。
func (p *Progress) Advance(to Stage) bool {
	p.mu.Lock()
	from := p.current
	if !validAdvance(from, to) {
		p.mu.Unlock()
		logger.Warnf("[pipeline] 非法阶段切换 %s → %s", from, to)
		return false
	}
	p.current = to
	fn := p.onChange
	p.mu.Unlock()

	logger.Debugf("[pipeline] 阶段 %s → %s", from, to)
	if fn != nil {
		fn(from, to)
	}
	return true
}

// Reset 无条件回到 Idle。
func (p *Progress) Reset() {
	p.mu.Lock()
	from := p.current
	p.current = StageIdle
	fn := p.onChange
	p.mu.Unlock()

	if from != StageIdle && fn != nil {
		fn(from, StageIdle)
	}
}

func validAdvance(from, to Stage) bool {
	if to == StageIdle {
		return true
	}
	return from < StageDone && to == from+1
}
