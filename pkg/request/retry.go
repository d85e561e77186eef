package request

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig 投递重试策略
type RetryConfig struct {
	// MaxRetries 首次失败后追加的重试次数
	MaxRetries int
	// InitialDelay 首次重试前的退避时长
	InitialDelay time.Duration
	// MaxDelay 退避时长上限
	MaxDelay time.Duration
	// Multiplier 退避倍增系数
	Multiplier float64
	// ShouldRetry 重试判定，默认网络错误与 5xx 重试
	ShouldRetry func(resp *Response, err error) bool
}

// DefaultRetryConfig 返回默认重试策略
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:   2,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// defaultShouldRetry 网络错误与 5xx 视为瞬时故障
func defaultShouldRetry(resp *Response, err error) bool {
	if err != nil {
		return true
	}
	return resp != nil && resp.StatusCode >= 500
}

// normalize 填充零值字段
func (rc *RetryConfig) normalize() {
	if rc.MaxRetries < 0 {
		rc.MaxRetries = 0
	}
	if rc.InitialDelay <= 0 {
		rc.InitialDelay = 200 * time.Millisecond
	}
	if rc.MaxDelay <= 0 {
		rc.MaxDelay = 5 * time.Second
	}
	if rc.Multiplier < 1 {
		rc.Multiplier = 2.0
	}
	if rc.ShouldRetry == nil {
		rc.ShouldRetry = defaultShouldRetry
	}
}

// backoff 第 n 次重试前的等待时长，指数退避加 ±25% 抖动
func (rc *RetryConfig) backoff(n int) time.Duration {
	d := float64(rc.InitialDelay) * math.Pow(rc.Multiplier, float64(n))
	if d > float64(rc.MaxDelay) {
		d = float64(rc.MaxDelay)
	}
	d += d * 0.25 * (rand.Float64()*2 - 1)
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}
