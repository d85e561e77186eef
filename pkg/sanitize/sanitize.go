package sanitize

import (
	"regexp"
	"strings"
)

// 预编译的危险内容正则
var (
	// scriptRegex 匹配 <script> 块（含内容），大小写不敏感
	scriptRegex = regexp.MustCompile(`(?is)<\s*script[^>]*>.*?<\s*/\s*script\s*>`)
	// scriptOpenRegex 匹配未闭合的 <script> 开标签
	scriptOpenRegex = regexp.MustCompile(`(?i)<\s*/?\s*script[^>]*>`)
	// iframeRegex 匹配 <iframe> 块（含内容）
	iframeRegex = regexp.MustCompile(`(?is)<\s*iframe[^>]*>.*?<\s*/\s*iframe\s*>`)
	// iframeOpenRegex 匹配未闭合的 <iframe> 开标签
	iframeOpenRegex = regexp.MustCompile(`(?i)<\s*/?\s*iframe[^>]*>`)
	// eventAttrRegex 匹配内联事件属性，如 onclick="..." / onerror='...' / onload=x
	eventAttrRegex = regexp.MustCompile(`(?i)\s+on[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
	// jsURIRegex 匹配 javascript: 伪协议（允许协议名内混入空白）
	jsURIRegex = regexp.MustCompile(`(?i)j\s*a\s*v\s*a\s*s\s*c\s*r\s*i\s*p\s*t\s*:`)
)

// Text 清洗一段用户输入的自由文本。
//
// 处理顺序：剥离 script/iframe 块与游离标签 → 剥离内联事件属性 →
// 剥离 javascript: 伪协议 → 去首尾空白。
// 清洗是幂等的：对输出再次调用返回相同结果。
func Text(s string) string {
	if s == "" {
		return s
	}

	// 循环剥离，防止嵌套构造在一轮替换后重新拼出危险片段
	// （如 "<scr<script>ipt>"）
	for {
		cleaned := scriptRegex.ReplaceAllString(s, "")
		cleaned = scriptOpenRegex.ReplaceAllString(cleaned, "")
		cleaned = iframeRegex.ReplaceAllString(cleaned, "")
		cleaned = iframeOpenRegex.ReplaceAllString(cleaned, "")
		cleaned = eventAttrRegex.ReplaceAllString(cleaned, "")
		cleaned = jsURIRegex.ReplaceAllString(cleaned, "")
		if cleaned == s {
			break
		}
		s = cleaned
	}

	return strings.TrimSpace(s)
}

// TextN 清洗文本并按 rune 截断到 max 长度
func TextN(s string, max int) string {
	return Truncate(Text(s), max)
}

// URL 清洗 URL 字段：剥离 javascript: 伪协议后仅保留 http/https 链接，
// 其余一律返回空串
func URL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if jsURIRegex.MatchString(s) {
		return ""
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ""
	}
	return s
}

// Truncate 按 rune 截断字符串，保证不产生半个多字节字符
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// ClampStrings 清洗字符串切片中的每一项并截断切片长度，
// 超出 maxItems 的元素直接丢弃（不报错）
func ClampStrings(items []string, maxItems, maxLen int) []string {
	if len(items) == 0 {
		return nil
	}
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		cleaned := TextN(item, maxLen)
		if cleaned == "" {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}
