// Package script 定义听力题播报脚本的数据模型，并负责解析和校验大模型生成的脚本文本。
package script

import (
	"strings"
)

// Gender 表示说话人的性别，决定合成时使用的音色。
type Gender int

const (
	// GenderUnknown 是零值，不是合法性别。
	GenderUnknown Gender = iota
	Male
	Female
)

func (g Gender) String() string {
	switch g {
	case Male:
		return "male"
	case Female:
		return "female"
	}
	return "unknown"
}

// Valid 报告 g 是否为可识别的性别。
func (g Gender) Valid() bool {
	return g == Male || g == Female
}

// genderTokens 是性别标记的双语对照表，键均为小写。
var genderTokens = map[string]Gender{
	"male":   Male,
	"ذكر":    Male,
	"female": Female,
	"أنثى":   Female,
}

// ParseGender 将脚本中的性别标记归一化为 Gender。
func ParseGender(token string) (Gender, bool) {
	g, ok := genderTokens[strings.ToLower(strings.TrimSpace(token))]
	return g, ok
}

// Turn 是一个说话人的一段台词。
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Gender  Gender `json:"gender"`
}

// Block 是按播放顺序排列的一组台词。
type Block []Turn

// DefaultAnnouncer 是播报员角色的默认名称。
const DefaultAnnouncer = "Announcer"

// IsAnnouncer 报告 speaker 是否为播报员（忽略大小写）。
func IsAnnouncer(speaker, announcer string) bool {
	return strings.EqualFold(strings.TrimSpace(speaker), announcer)
}

// GenderMap 记录一次解析过程中每个说话人第一次出现时的性别。
// 已记录的性别不会被后续冲突的标记改写。
type GenderMap map[string]Gender

// Resolve 返回 speaker 最终使用的性别；conflict 为 true 表示本次标记与已记录的性别冲突。
func (m GenderMap) Resolve(speaker string, g Gender) (resolved Gender, conflict bool) {
	if first, ok := m[speaker]; ok {
		return first, first != g
	}
	m[speaker] = g
	return g, false
}
