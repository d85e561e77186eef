package strings

import (
	"strings"
	"unicode"
)

// IsEmpty 检查字符串是否为空
func IsEmpty(s string) bool {
	return s == ""
}

// IsBlank 检查字符串是否为空白（空或仅含空白字符）
func IsBlank(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// Default 字符串为空时返回默认值
func Default(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// HasPrefix 检查字符串是否以指定前缀开头
func HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}

// HasSuffix 检查字符串是否以指定后缀结尾
func HasSuffix(s, suffix string) bool {
	return strings.HasSuffix(s, suffix)
}

// Contains 检查字符串是否包含子串
func Contains(s, substr string) bool {
	return strings.Contains(s, substr)
}

// Mask 遮蔽字符串中间部分，保留首尾指定长度。
// 用于日志中输出令牌等敏感内容。
func Mask(s string, keepLeft, keepRight int) string {
	runes := []rune(s)
	if keepLeft < 0 {
		keepLeft = 0
	}
	if keepRight < 0 {
		keepRight = 0
	}
	if len(runes) <= keepLeft+keepRight {
		return strings.Repeat("*", len(runes))
	}
	masked := len(runes) - keepLeft - keepRight
	return string(runes[:keepLeft]) + strings.Repeat("*", masked) + string(runes[len(runes)-keepRight:])
}
