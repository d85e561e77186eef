package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig 握手限流中间件配置
type RateLimitConfig struct {
	// RequestsPerSecond 每秒补充的令牌数
	RequestsPerSecond float64

	// Burst 桶容量（突发上限）
	Burst int

	// KeyFunc 限流键函数，默认按客户端 IP
	KeyFunc func(c *gin.Context) string

	// SkipFunc 跳过限流的函数
	SkipFunc func(c *gin.Context) bool

	// CleanupInterval 过期桶清理周期
	CleanupInterval time.Duration

	// BucketExpiry 桶闲置多久后回收
	BucketExpiry time.Duration
}

// DefaultRateLimitConfig 默认握手限流配置
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 5,
		Burst:             10,
		CleanupInterval:   10 * time.Minute,
		BucketExpiry:      30 * time.Minute,
	}
}

// RateLimit 创建握手限流中间件。
// 按客户端 IP 的令牌桶限制 HTTP 请求频率，挂在升级端点前
// 可以挡住连接风暴；连接建立后的事件频率由会话内限流器负责。
func RateLimit(cfgs ...*RateLimitConfig) gin.HandlerFunc {
	cfg := DefaultRateLimitConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.BucketExpiry <= 0 {
		cfg.BucketExpiry = 30 * time.Minute
	}

	store := newBucketStore(cfg)
	store.startCleanup()

	return func(c *gin.Context) {
		if cfg.SkipFunc != nil && cfg.SkipFunc(c) {
			c.Next()
			return
		}

		if !store.getBucket(cfg.KeyFunc(c)).take() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}

// tokenBucket 单键令牌桶
type tokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastFill time.Time
	lastUsed time.Time
}

// take 取一个令牌，桶空时返回 false
func (b *tokenBucket) take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastFill = now
	b.lastUsed = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// bucketStore 按键管理令牌桶并定期回收闲置的桶
type bucketStore struct {
	mu      sync.RWMutex
	buckets map[string]*tokenBucket
	cfg     *RateLimitConfig
}

func newBucketStore(cfg *RateLimitConfig) *bucketStore {
	return &bucketStore{
		buckets: make(map[string]*tokenBucket),
		cfg:     cfg,
	}
}

// getBucket 取出或创建指定键的桶
func (s *bucketStore) getBucket(key string) *tokenBucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[key]; ok {
		return b
	}
	now := time.Now()
	b = &tokenBucket{
		tokens:   float64(s.cfg.Burst),
		capacity: float64(s.cfg.Burst),
		rate:     s.cfg.RequestsPerSecond,
		lastFill: now,
		lastUsed: now,
	}
	s.buckets[key] = b
	return b
}

// startCleanup 启动后台清理，回收长期未使用的桶
func (s *bucketStore) startCleanup() {
	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-s.cfg.BucketExpiry)
			s.mu.Lock()
			for key, b := range s.buckets {
				b.mu.Lock()
				idle := b.lastUsed.Before(cutoff)
				b.mu.Unlock()
				if idle {
					delete(s.buckets, key)
				}
			}
			s.mu.Unlock()
		}
	}()
}
