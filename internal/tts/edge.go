package tts

import (
	"bytes"
	"context"
	"fmt"

	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"
)

// EdgeEngine 使用微软 Edge TTS 合成语音，输出 24kHz 单声道 MP3。
// 语言由音色名隐含（如 ar-SA-HamedNeural）。
type EdgeEngine struct{}

// NewEdgeEngine 创建 Edge TTS 引擎。
func NewEdgeEngine() *EdgeEngine {
	return &EdgeEngine{}
}

// SynthesizeSpeech 将文本合成为 MP3 字节。
func (e *EdgeEngine) SynthesizeSpeech(ctx context.Context, req Request) ([]byte, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，音色=%s", len([]rune(req.Text)), req.Voice)

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(req.Voice))
	if err != nil {
		return nil, fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}
	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	var buf bytes.Buffer
	for msg := range ch {
		if ctx.Err() != nil {
			// 排空 channel，避免 Stream 的 goroutine 阻塞
			go func() {
				for range ch {
				}
			}()
			return nil, ctx.Err()
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}

	if buf.Len() == 0 {
		return nil, fmt.Errorf("[tts] edge-tts: 未收到音频数据")
	}
	logger.Debugf("[tts] edge-tts: 收到 %d 字节 MP3", buf.Len())
	return buf.Bytes(), nil
}
