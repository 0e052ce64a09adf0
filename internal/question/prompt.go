package question

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// promptTemplate 要求模型严格按 Speaker/Text/--- 的格式输出，%[2]s 处嵌入题目 JSON。
const promptTemplate = `You are an Arabic language test audio script generator. Format the following question for audio generation.

Rules:
1. Introduction and Question parts:
   - Must start with 'Speaker: %[1]s (Gender: male)'
   - Keep as separate parts

2. Conversation parts:
   - Name speakers based on their role (Student, Teacher, etc.)
   - Must specify gender EXACTLY as either 'Gender: male' or 'Gender: female'
   - Use consistent names for the same speaker
   - Split long speeches at natural pauses

Format each part EXACTLY like this, with no variations:
Speaker: [name] (Gender: male)
Text: [Arabic text]
---

Example format:
Speaker: %[1]s (Gender: male)
Text: استمع إلى المحادثة التالية وأجب عن السؤال
---
Speaker: Student (Gender: female)
Text: عفواً، هل تتوقف هذه الحافلة عند المحطة التالية؟
---

Question to format:
%[2]s

Output ONLY the formatted parts in order: introduction, conversation, question.
Make sure to specify gender EXACTLY as shown in the example.
`

// Prompt 渲染生成播报脚本的提示词。相同输入总是得到相同的提示词。
func Prompt(q *Question, announcer string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(q); err != nil {
		return "", fmt.Errorf("[question] 序列化题目失败: %w", err)
	}
	return fmt.Sprintf(promptTemplate, announcer, bytes.TrimRight(buf.Bytes(), "\n")), nil
}
