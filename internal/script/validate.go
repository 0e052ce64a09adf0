package script

import (
	"fmt"
	"strings"
)

// Rules 描述脚本校验所需的领域参数。
type Rules struct {
	// Announcer 是必须出现在第一段的播报员角色名，比较时忽略大小写。
	Announcer string
	// InScript 判断字符是否属于目标语言的文字，台词中至少要有一个这样的字符。
	InScript func(r rune) bool
}

// RuneRange 返回判断字符是否落在 [lo, hi] 闭区间内的谓词。
func RuneRange(lo, hi rune) func(rune) bool {
	return func(r rune) bool { return r >= lo && r <= hi }
}

// Arabic 判断字符是否属于阿拉伯文基本区块 U+0600–U+06FF。
var Arabic = RuneRange(0x0600, 0x06FF)

// DefaultRules 返回阿拉伯语听力题的默认校验规则。
func DefaultRules() Rules {
	return Rules{Announcer: DefaultAnnouncer, InScript: Arabic}
}

// Validate 按顺序检查脚本约束，遇到第一个问题即返回 *ValidationError。
func Validate(block Block, rules Rules) error {
	if rules.Announcer == "" {
		rules.Announcer = DefaultAnnouncer
	}
	if rules.InScript == nil {
		rules.InScript = Arabic
	}

	if len(block) == 0 {
		return &ValidationError{Index: -1, Reason: "没有生成任何台词"}
	}
	if !IsAnnouncer(block[0].Speaker, rules.Announcer) {
		return &ValidationError{Index: 0, Reason: fmt.Sprintf("第一个说话人必须是 %s，实际为 %q", rules.Announcer, block[0].Speaker)}
	}

	for i, t := range block {
		if strings.TrimSpace(t.Speaker) == "" {
			return &ValidationError{Index: i, Reason: "说话人为空"}
		}
		if strings.TrimSpace(t.Text) == "" {
			return &ValidationError{Index: i, Reason: "台词为空"}
		}
		if !t.Gender.Valid() {
			return &ValidationError{Index: i, Reason: "性别无效: " + t.Gender.String()}
		}
		if !strings.ContainsFunc(t.Text, rules.InScript) {
			return &ValidationError{Index: i, Reason: "台词不包含目标语言文字"}
		}
	}
	return nil
}
