package audio

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 固定输出 16-bit 立体声 PCM，每帧 4 字节。
const mp3BytesPerFrame = 4

// Probe 解码 MP3 头信息，返回音频时长。
func Probe(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("[audio] 打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}
	rate := decoder.SampleRate()
	if rate <= 0 || decoder.Length() <= 0 {
		return 0, fmt.Errorf("[audio] 无法确定 %s 的时长", path)
	}
	frames := decoder.Length() / mp3BytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(rate), nil
}

// Decode 把 MP3 文件完整解码为 16-bit LE 立体声 PCM。
func Decode(path string) (pcm []byte, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}
	pcm, err = io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("[audio] 读取 PCM 数据失败: %w", err)
	}
	if n := len(pcm) % mp3BytesPerFrame; n != 0 {
		pcm = pcm[:len(pcm)-n]
	}
	return pcm, decoder.SampleRate(), nil
}
