package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/iabetor/listenbuddy/internal/tts"
)

// SynthesisError 表示某段台词合成失败，整条流水线随之终止。
type SynthesisError struct {
	Index int
	Voice string
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("[audio] 第 %d 段台词合成失败 (音色 %s): %v", e.Index+1, e.Voice, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// SegmentSynthesizer 为每段台词调用一次语音合成服务，并把结果落盘到临时文件。
type SegmentSynthesizer struct {
	synth    tts.Synthesizer
	dir      string
	language string
}

// NewSegmentSynthesizer 创建片段合成器，临时文件写入 dir。
func NewSegmentSynthesizer(synth tts.Synthesizer, dir, language string) *SegmentSynthesizer {
	return &SegmentSynthesizer{synth: synth, dir: dir, language: language}
}

// Synthesize 合成第 index 段台词，返回一次性的 Speech 片段。
func (s *SegmentSynthesizer) Synthesize(ctx context.Context, index int, text, voice string) (Segment, error) {
	data, err := s.synth.SynthesizeSpeech(ctx, tts.Request{
		Text:     text,
		Voice:    voice,
		Format:   tts.FormatMP3,
		Language: s.language,
	})
	if err != nil {
		return Segment{}, &SynthesisError{Index: index, Voice: voice, Err: err}
	}
	if len(data) == 0 {
		return Segment{}, &SynthesisError{Index: index, Voice: voice, Err: fmt.Errorf("音频为空")}
	}

	f, err := os.CreateTemp(s.dir, fmt.Sprintf("turn-%03d-*.mp3", index))
	if err != nil {
		return Segment{}, &SynthesisError{Index: index, Voice: voice, Err: err}
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return Segment{}, &SynthesisError{Index: index, Voice: voice, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Segment{}, &SynthesisError{Index: index, Voice: voice, Err: err}
	}

	logger.Debugf("[audio] 第 %d 段台词已合成: %s (%d 字节)", index+1, path, len(data))
	return Segment{Index: index, Path: path, Kind: Speech}, nil
}
