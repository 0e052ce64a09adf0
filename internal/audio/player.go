package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/iabetor/listenbuddy/internal/logger"
)

// Player 通过 malgo (miniaudio) 在默认扬声器上试听生成的音频。
type Player struct {
	ctx    *malgo.AllocatedContext
	mu     sync.Mutex
	closed bool
}

// NewPlayer 初始化播放上下文。
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx}, nil
}

// PlayFile 解码并播放一个 MP3 文件，阻塞直到播放结束或 ctx 取消。
func (p *Player) PlayFile(ctx context.Context, path string) error {
	pcm, rate, err := Decode(path)
	if err != nil {
		return err
	}
	return p.play(ctx, pcm, rate)
}

// play 播放 16-bit LE 立体声 PCM。
func (p *Player) play(ctx context.Context, pcm []byte, sampleRate int) error {
	if len(pcm) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("[audio] 播放器已关闭")
	}
	p.mu.Unlock()

	const channels = 2
	pos := 0
	done := make(chan struct{}, 1)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = uint32(sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, _ []byte, frameCount uint32) {
			need := int(frameCount) * channels * 2
			n := copy(out[:need], pcm[pos:])
			pos += n
			for i := n; i < need; i++ {
				out[i] = 0
			}
			if pos >= len(pcm) {
				select {
				case done <- struct{}{}:
				default:
				}
			}
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("[audio] 初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("[audio] 启动播放设备失败: %w", err)
	}
	defer device.Stop()

	select {
	case <-ctx.Done():
		logger.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Info("[audio] 播放完成")
		return nil
	}
}

// Close 释放播放上下文。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
