package script

import (
	"bufio"
	"strings"

	"github.com/iabetor/listenbuddy/internal/logger"
)

const (
	speakerMarker = "Speaker:"
	textMarker    = "Text:"
	genderMarker  = "Gender:"
	turnDelimiter = "---"
)

// Parse 将大模型输出的脚本文本解析为台词序列，格式为：
//
//	Speaker: <name> (Gender: <male|female|ذكر|أنثى>)
//	Text: <台词>
//	---
//
// 只做语法解析，不检查播报员位置和文字范围，这些由 Validate 负责。
func Parse(raw string) (Block, error) {
	var (
		block   Block
		speaker string
		gender  Gender
		text    string
		genders = make(GenderMap)
	)

	flush := func() {
		if speaker != "" && text != "" {
			block = append(block, Turn{Speaker: speaker, Text: text, Gender: gender})
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, speakerMarker):
			flush()
			text = ""

			name, g, err := parseSpeakerLine(line, lineNo)
			if err != nil {
				return nil, err
			}
			resolved, conflict := genders.Resolve(name, g)
			if conflict {
				logger.Warnf("[script] 说话人 %s 的性别标记冲突 (%s)，沿用首次出现的 %s", name, g, resolved)
			}
			speaker, gender = name, resolved

		case strings.HasPrefix(line, textMarker):
			text = strings.TrimSpace(strings.TrimPrefix(line, textMarker))

		case line == turnDelimiter:
			flush()
			speaker, gender, text = "", GenderUnknown, ""
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &ParseFormatError{Line: lineNo, Reason: "读取脚本失败: " + err.Error()}
	}
	flush()

	return block, nil
}

// parseSpeakerLine 解析 "Speaker: Student (Gender: female)" 形式的行。
func parseSpeakerLine(line string, lineNo int) (string, Gender, error) {
	rest := strings.TrimSpace(strings.TrimPrefix(line, speakerMarker))

	name := rest
	if i := strings.Index(rest, "("); i >= 0 {
		name = rest[:i]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", GenderUnknown, &ParseFormatError{Line: lineNo, Content: line, Reason: "缺少说话人名称"}
	}

	i := strings.Index(rest, genderMarker)
	if i < 0 {
		return "", GenderUnknown, &ParseFormatError{Line: lineNo, Content: line, Reason: "缺少性别标记"}
	}
	token := rest[i+len(genderMarker):]
	if j := strings.Index(token, ")"); j >= 0 {
		token = token[:j]
	}

	g, ok := ParseGender(token)
	if !ok {
		return "", GenderUnknown, &ParseFormatError{Line: lineNo, Content: line, Reason: "无法识别的性别: " + strings.TrimSpace(token)}
	}
	return name, g, nil
}
