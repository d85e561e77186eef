package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("ratelimit: invalid config")
)

// Rule 单条限流规则：固定窗口内允许的最大事件数
type Rule struct {
	// Limit 窗口内允许的最大次数
	Limit int
	// Window 窗口长度
	Window time.Duration
}

// Config 限流器配置
type Config struct {
	// Default 未单独配置的事件类型使用的兜底规则
	Default Rule
	// Rules 按事件类型覆盖的规则
	Rules map[string]Rule
	// PruneInterval 空闲窗口清理周期
	PruneInterval time.Duration
	// IdleTimeout 窗口多久未被触达后可被清理
	IdleTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Default: Rule{Limit: 30, Window: 10 * time.Second},
		Rules: map[string]Rule{
			"message:send":   {Limit: 10, Window: 10 * time.Second},
			"message:edit":   {Limit: 10, Window: 10 * time.Second},
			"message:delete": {Limit: 10, Window: 10 * time.Second},
			"typing:start":   {Limit: 20, Window: 10 * time.Second},
			"channel:join":   {Limit: 15, Window: 10 * time.Second},
		},
		PruneInterval: time.Minute,
		IdleTimeout:   5 * time.Minute,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Default.Limit <= 0 || c.Default.Window <= 0 {
		return ErrInvalidConfig
	}
	for event, rule := range c.Rules {
		if event == "" || rule.Limit <= 0 || rule.Window <= 0 {
			return ErrInvalidConfig
		}
	}
	if c.PruneInterval <= 0 {
		c.PruneInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
	return nil
}

// Limiter 固定窗口限流器，按 (用户, 事件类型) 维度计数
type Limiter interface {
	// Allow 判断一次事件是否放行，计数在判定时累加
	Allow(userID, event string) bool
	// Remaining 返回当前窗口剩余配额
	Remaining(userID, event string) int
	// Stats 返回累计放行与拒绝次数
	Stats() (allowed, denied int64)
	// Close 停止后台清理
	Close()
}

// window 单个 (用户, 事件) 的计数窗口
type window struct {
	count    int
	start    time.Time
	lastSeen time.Time
}

type limiter struct {
	config  *Config
	mu      sync.Mutex
	windows map[string]*window

	allowed atomic.Int64
	denied  atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New 创建限流器
func New(config *Config) (Limiter, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &limiter{
		config:  config,
		windows: make(map[string]*window),
		stopCh:  make(chan struct{}),
	}
	go l.pruneLoop()
	return l, nil
}

// rule 返回事件类型对应的规则
func (l *limiter) rule(event string) Rule {
	if r, ok := l.config.Rules[event]; ok {
		return r
	}
	return l.config.Default
}

func (l *limiter) Allow(userID, event string) bool {
	r := l.rule(event)
	key := userID + "\x00" + event
	now := time.Now()

	l.mu.Lock()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= r.Window {
		// 窗口过期或首次触达，重新开窗
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	w.lastSeen = now
	ok = w.count <= r.Limit
	l.mu.Unlock()

	if ok {
		l.allowed.Add(1)
	} else {
		l.denied.Add(1)
	}
	return ok
}

func (l *limiter) Remaining(userID, event string) int {
	r := l.rule(event)
	key := userID + "\x00" + event
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= r.Window {
		return r.Limit
	}
	remaining := r.Limit - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *limiter) Stats() (allowed, denied int64) {
	return l.allowed.Load(), l.denied.Load()
}

func (l *limiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// pruneLoop 周期清理长时间未触达的窗口，避免键空间无限增长
func (l *limiter) pruneLoop() {
	ticker := time.NewTicker(l.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.prune(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *limiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.lastSeen) > l.config.IdleTimeout {
			delete(l.windows, key)
		}
	}
}
