package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, config *Config) Limiter {
	t.Helper()
	l, err := New(config)
	if err != nil {
		t.Fatalf("创建限流器失败: %v", err)
	}
	t.Cleanup(l.Close)
	return l
}

func TestAllow(t *testing.T) {
	t.Run("窗口内放行到上限", func(t *testing.T) {
		l := newTestLimiter(t, &Config{
			Default: Rule{Limit: 100, Window: time.Minute},
			Rules:   map[string]Rule{"message:send": {Limit: 3, Window: time.Minute}},
		})

		for i := 0; i < 3; i++ {
			if !l.Allow("u1", "message:send") {
				t.Fatalf("第 %d 次应放行", i+1)
			}
		}
		if l.Allow("u1", "message:send") {
			t.Error("超过上限后仍放行")
		}
	})

	t.Run("不同用户独立计数", func(t *testing.T) {
		l := newTestLimiter(t, &Config{
			Default: Rule{Limit: 2, Window: time.Minute},
		})

		l.Allow("u1", "message:send")
		l.Allow("u1", "message:send")
		if l.Allow("u1", "message:send") {
			t.Error("u1 超限后仍放行")
		}
		if !l.Allow("u2", "message:send") {
			t.Error("u2 应不受 u1 影响")
		}
	})

	t.Run("不同事件独立计数", func(t *testing.T) {
		l := newTestLimiter(t, &Config{
			Default: Rule{Limit: 1, Window: time.Minute},
		})

		l.Allow("u1", "message:send")
		if l.Allow("u1", "message:send") {
			t.Error("同事件应已超限")
		}
		if !l.Allow("u1", "typing:start") {
			t.Error("另一事件应独立计数")
		}
	})

	t.Run("窗口过期后重新计数", func(t *testing.T) {
		l := newTestLimiter(t, &Config{
			Default: Rule{Limit: 1, Window: 30 * time.Millisecond},
		})

		if !l.Allow("u1", "message:send") {
			t.Fatal("首次应放行")
		}
		if l.Allow("u1", "message:send") {
			t.Fatal("窗口内第二次应拒绝")
		}
		time.Sleep(40 * time.Millisecond)
		if !l.Allow("u1", "message:send") {
			t.Error("窗口过期后应重新放行")
		}
	})

	t.Run("未配置事件走兜底规则", func(t *testing.T) {
		l := newTestLimiter(t, &Config{
			Default: Rule{Limit: 2, Window: time.Minute},
			Rules:   map[string]Rule{"message:send": {Limit: 100, Window: time.Minute}},
		})

		l.Allow("u1", "unknown:event")
		l.Allow("u1", "unknown:event")
		if l.Allow("u1", "unknown:event") {
			t.Error("兜底规则未生效")
		}
	})
}

func TestRemaining(t *testing.T) {
	l := newTestLimiter(t, &Config{
		Default: Rule{Limit: 5, Window: time.Minute},
	})

	if got := l.Remaining("u1", "message:send"); got != 5 {
		t.Errorf("初始剩余期望 5 实际 %d", got)
	}
	l.Allow("u1", "message:send")
	l.Allow("u1", "message:send")
	if got := l.Remaining("u1", "message:send"); got != 3 {
		t.Errorf("消耗 2 次后剩余期望 3 实际 %d", got)
	}

	for i := 0; i < 10; i++ {
		l.Allow("u1", "message:send")
	}
	if got := l.Remaining("u1", "message:send"); got != 0 {
		t.Errorf("超限后剩余期望 0 实际 %d", got)
	}
}

func TestStats(t *testing.T) {
	l := newTestLimiter(t, &Config{
		Default: Rule{Limit: 2, Window: time.Minute},
	})

	l.Allow("u1", "e")
	l.Allow("u1", "e")
	l.Allow("u1", "e")

	allowed, denied := l.Stats()
	if allowed != 2 {
		t.Errorf("放行计数期望 2 实际 %d", allowed)
	}
	if denied != 1 {
		t.Errorf("拒绝计数期望 1 实际 %d", denied)
	}
}

func TestPrune(t *testing.T) {
	l := newTestLimiter(t, &Config{
		Default:       Rule{Limit: 10, Window: 10 * time.Millisecond},
		PruneInterval: time.Hour,
		IdleTimeout:   20 * time.Millisecond,
	})

	impl := l.(*limiter)
	l.Allow("u1", "e")
	l.Allow("u2", "e")

	impl.mu.Lock()
	before := len(impl.windows)
	impl.mu.Unlock()
	if before != 2 {
		t.Fatalf("期望 2 个窗口实际 %d", before)
	}

	impl.prune(time.Now().Add(time.Minute))

	impl.mu.Lock()
	after := len(impl.windows)
	impl.mu.Unlock()
	if after != 0 {
		t.Errorf("清理后期望 0 个窗口实际 %d", after)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"默认配置有效", DefaultConfig(), false},
		{"兜底上限为零", &Config{Default: Rule{Limit: 0, Window: time.Second}}, true},
		{"兜底窗口为零", &Config{Default: Rule{Limit: 1, Window: 0}}, true},
		{"规则键为空", &Config{
			Default: Rule{Limit: 1, Window: time.Second},
			Rules:   map[string]Rule{"": {Limit: 1, Window: time.Second}},
		}, true},
		{"规则上限为负", &Config{
			Default: Rule{Limit: 1, Window: time.Second},
			Rules:   map[string]Rule{"e": {Limit: -1, Window: time.Second}},
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr && err == nil {
				t.Error("期望报错实际为 nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("期望通过实际报错: %v", err)
			}
		})
	}
}

func TestConcurrentAllow(t *testing.T) {
	l := newTestLimiter(t, &Config{
		Default: Rule{Limit: 1000, Window: time.Minute},
	})

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(id int) {
			defer func() { done <- struct{}{} }()
			user := fmt.Sprintf("u%d", id%2)
			for j := 0; j < 100; j++ {
				l.Allow(user, "message:send")
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	allowed, denied := l.Stats()
	if allowed+denied != 800 {
		t.Errorf("总计数期望 800 实际 %d", allowed+denied)
	}
}
