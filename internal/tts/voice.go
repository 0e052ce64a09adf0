package tts

import "github.com/iabetor/listenbuddy/internal/script"

// Edge 的默认阿拉伯语音色。
const (
	EdgeMaleVoice   = "ar-SA-HamedNeural"
	EdgeFemaleVoice = "ar-SA-ZariyahNeural"
)

// VoiceSelector 把性别映射为固定音色。每种性别只用一个音色，保证同一脚本多次合成结果一致。
type VoiceSelector struct {
	Male   string
	Female string
}

// DefaultVoices 返回指定引擎的默认音色。腾讯云没有阿拉伯语音色，
// 返回空值，音色必须由配置给出。
func DefaultVoices(engine string) VoiceSelector {
	if engine == "tencent" {
		return VoiceSelector{}
	}
	return VoiceSelector{Male: EdgeMaleVoice, Female: EdgeFemaleVoice}
}

// VoiceFor 返回性别对应的音色，未知性别按女声处理。
func (v VoiceSelector) VoiceFor(g script.Gender) string {
	switch g {
	case script.Male:
		return v.Male
	case script.Female:
		return v.Female
	}
	return v.Female
}
