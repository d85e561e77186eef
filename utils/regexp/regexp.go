package regexp

import (
	"regexp"
	"sync"
)

// 常用模式
const (
	PatternURL   = `^https?://[\w\-]+(\.[\w\-]+)*(:\d+)?(/[\w\-./?%&=]*)?$`
	PatternEmail = `^[\w.+-]+@[\w-]+(\.[\w-]+)+$`
)

var (
	mu    sync.RWMutex
	cache = make(map[string]*regexp.Regexp)
)

// compile 编译模式并缓存结果
func compile(pattern string) (*regexp.Regexp, error) {
	mu.RLock()
	re, ok := cache[pattern]
	mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	cache[pattern] = re
	mu.Unlock()
	return re, nil
}

// IsMatch 检查字符串是否匹配模式，模式非法返回 false
func IsMatch(pattern, s string) bool {
	re, err := compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// IsMatchURL 检查字符串是否为合法 URL
func IsMatchURL(s string) bool {
	return IsMatch(PatternURL, s)
}

// IsMatchEmail 检查字符串是否为合法邮箱
func IsMatchEmail(s string) bool {
	return IsMatch(PatternEmail, s)
}
