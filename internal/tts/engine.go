package tts

import (
	"context"
	"fmt"
)

// FormatMP3 是流水线统一使用的输出编码，拼接时依赖所有片段编码一致。
const FormatMP3 = "mp3"

// Request 是一次语音合成请求。
type Request struct {
	Text     string
	Voice    string
	Format   string // 目前只支持 mp3
	Language string // 如 ar-SA，部分引擎由音色隐含语言，会忽略该字段
}

// Synthesizer 定义语音合成服务：输入文本和音色，返回指定编码的原始音频字节。
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, req Request) ([]byte, error)
}

func checkRequest(req Request) error {
	if req.Text == "" {
		return fmt.Errorf("[tts] 合成文本为空")
	}
	if req.Voice == "" {
		return fmt.Errorf("[tts] 未指定音色")
	}
	if req.Format != "" && req.Format != FormatMP3 {
		return fmt.Errorf("[tts] 不支持的输出编码: %s", req.Format)
	}
	return nil
}
