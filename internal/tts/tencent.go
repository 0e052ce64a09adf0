package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/iabetor/listenbuddy/internal/logger"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tencenttts "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tts/v20190823"
)

// TencentConfig 腾讯云 TTS 配置。
type TencentConfig struct {
	SecretID   string
	SecretKey  string
	Region     string
	SampleRate uint64
}

// TencentEngine 使用腾讯云 TextToVoice 合成语音。音色为数字 VoiceType 的字符串形式。
// 接口按音色决定语种，Request.Language 不会发送；音色须与目标语言一致。
type TencentEngine struct {
	client     *tencenttts.Client
	sampleRate uint64
}

// NewTencentEngine 创建腾讯云 TTS 引擎。
func NewTencentEngine(cfg TencentConfig) (*TencentEngine, error) {
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 需要 SecretID 和 SecretKey")
	}
	if cfg.Region == "" {
		cfg.Region = "ap-guangzhou"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.Endpoint = "tts.tencentcloudapi.com"

	client, err := tencenttts.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("[tts] 创建腾讯云 TTS 客户端失败: %w", err)
	}
	logger.Infof("[tts] 腾讯云 TTS 引擎已初始化 (region=%s, sample_rate=%d)", cfg.Region, cfg.SampleRate)

	return &TencentEngine{client: client, sampleRate: cfg.SampleRate}, nil
}

// SynthesizeSpeech 将文本合成为 MP3 字节。
func (e *TencentEngine) SynthesizeSpeech(ctx context.Context, req Request) ([]byte, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	voiceType, err := strconv.ParseInt(req.Voice, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("[tts] 腾讯云音色必须是数字 VoiceType: %q", req.Voice)
	}
	logger.Debugf("[tts] 腾讯云 TTS: 正在合成 %d 个字符，音色=%d", len([]rune(req.Text)), voiceType)

	request := tencenttts.NewTextToVoiceRequest()
	request.SetContext(ctx)
	request.Text = common.StringPtr(req.Text)
	request.SessionId = common.StringPtr(uuid.NewString())
	request.VoiceType = common.Int64Ptr(voiceType)
	request.Codec = common.StringPtr(FormatMP3)
	request.SampleRate = common.Uint64Ptr(e.sampleRate)

	response, err := e.client.TextToVoice(request)
	if err != nil {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS 合成失败: %w", err)
	}
	if response.Response == nil || response.Response.Audio == nil {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS: 未返回音频数据")
	}

	data, err := base64.StdEncoding.DecodeString(*response.Response.Audio)
	if err != nil {
		return nil, fmt.Errorf("[tts] Base64 解码失败: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("[tts] 腾讯云 TTS: 音频为空")
	}
	return data, nil
}
