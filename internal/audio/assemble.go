package audio

import (
	"fmt"
	"strings"

	"github.com/iabetor/listenbuddy/internal/script"
)

// Section 是播报所处的阶段，决定在哪里插入停顿。
type Section int

const (
	SectionNone Section = iota
	SectionIntro
	SectionConversation
	SectionQuestion
)

var sectionNames = [...]string{"None", "Intro", "Conversation", "Question"}

func (s Section) String() string {
	if int(s) < len(sectionNames) {
		return sectionNames[s]
	}
	return "Unknown"
}

// Markers 是识别播报员台词阶段的关键词。
type Markers struct {
	Announcer string
	Intro     string // 引导语，如 "استمع"（听）
	Question  string // 如 "السؤال"（问题）
	Options   string // 如 "الخيارات"（选项）
}

// DefaultMarkers 返回阿拉伯语听力题的默认关键词。
func DefaultMarkers() Markers {
	return Markers{
		Announcer: script.DefaultAnnouncer,
		Intro:     "استمع",
		Question:  "السؤال",
		Options:   "الخيارات",
	}
}

// transition 计算一段台词之前是否插入长停顿，以及处理后的阶段。
//
//	播报员 + 引导语        → Intro（不是第一段时先插长停顿）
//	播报员 + 问题/选项     → Question（总是先插长停顿）
//	播报员 + 其他          → 阶段不变
//	非播报员且处于 Intro   → Conversation（先插长停顿）
func transition(cur Section, t script.Turn, m Markers) (longBefore bool, next Section) {
	if script.IsAnnouncer(t.Speaker, m.Announcer) {
		switch {
		case containsMarker(t.Text, m.Intro):
			return cur != SectionNone, SectionIntro
		case containsMarker(t.Text, m.Question), containsMarker(t.Text, m.Options):
			return true, SectionQuestion
		}
		return false, cur
	}
	if cur == SectionIntro {
		return true, SectionConversation
	}
	return false, cur
}

func containsMarker(text, marker string) bool {
	return marker != "" && strings.Contains(text, marker)
}

// Assemble 按台词顺序生成最终的拼接序列：speech[i] 是 block[i] 的合成音频，
// long/short 分别是阶段切换和对话行之间的停顿。返回的片段按序重新编号。
func Assemble(block script.Block, speech []Segment, long, short Segment, m Markers) ([]Segment, error) {
	if len(block) != len(speech) {
		return nil, fmt.Errorf("[audio] 台词数 %d 与音频片段数 %d 不一致", len(block), len(speech))
	}

	out := make([]Segment, 0, len(block)*2+2)
	section := SectionNone
	for i, t := range block {
		longBefore, next := transition(section, t, m)
		if longBefore {
			out = append(out, long)
		}
		section = next

		out = append(out, speech[i])
		if section == SectionConversation {
			out = append(out, short)
		}
	}

	for i := range out {
		out[i].Index = i
	}
	return out, nil
}
