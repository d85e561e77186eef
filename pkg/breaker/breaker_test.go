package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T, config *Config) *Breaker {
	t.Helper()
	b, err := New(config)
	require.NoError(t, err)
	return b
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			return errBoom
		})
	}
}

func succeedN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			return nil
		})
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := newTestBreaker(t, &Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         time.Hour,
	})

	failN(b, 2)
	assert.Equal(t, StateClosed, b.State(), "未达阈值不应打开")

	failN(b, 1)
	assert.Equal(t, StateOpen, b.State(), "达到阈值应打开")

	// 打开状态下调用被直接拒绝，op 不得执行
	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked, "打开状态下不应执行调用")

	counts := b.Counts()
	assert.Equal(t, int64(3), counts.Failures)
	assert.Equal(t, int64(1), counts.Rejected)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := newTestBreaker(t, &Config{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Cooldown:         time.Hour,
	})

	failN(b, 2)
	succeedN(b, 1)
	failN(b, 2)
	assert.Equal(t, StateClosed, b.State(), "失败计数应在成功后归零")

	failN(b, 1)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := newTestBreaker(t, &Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Cooldown:         20 * time.Millisecond,
	})

	failN(b, 1)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State(), "冷却期满应进入半开")

	succeedN(b, 1)
	assert.Equal(t, StateHalfOpen, b.State(), "半开下一次成功还不够")

	succeedN(b, 1)
	assert.Equal(t, StateClosed, b.State(), "达到成功阈值应关闭")
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(t, &Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Cooldown:         20 * time.Millisecond,
	})

	failN(b, 1)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	failN(b, 1)
	assert.Equal(t, StateOpen, b.State(), "探测失败应立即重新打开")

	// 重新打开后冷却重新计时
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
}

func TestDo(t *testing.T) {
	t.Run("成功返回结果", func(t *testing.T) {
		b := newTestBreaker(t, nil)
		got, err := Do(context.Background(), b, func(ctx context.Context) (string, error) {
			return "hello", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", got)
	})

	t.Run("调用失败返回零值", func(t *testing.T) {
		b := newTestBreaker(t, nil)
		got, err := Do(context.Background(), b, func(ctx context.Context) (*struct{ ID string }, error) {
			return &struct{ ID string }{ID: "x"}, errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Nil(t, got, "失败时应丢弃结果返回零值")
	})

	t.Run("打开状态返回零值与ErrOpen", func(t *testing.T) {
		b := newTestBreaker(t, &Config{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			Cooldown:         time.Hour,
		})
		failN(b, 1)

		got, err := Do(context.Background(), b, func(ctx context.Context) (int, error) {
			return 42, nil
		})
		assert.ErrorIs(t, err, ErrOpen)
		assert.Zero(t, got)
	})
}

func TestOnStateChange(t *testing.T) {
	ch := make(chan [2]State, 4)
	b := newTestBreaker(t, &Config{
		Name:             "db",
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Cooldown:         time.Hour,
		OnStateChange: func(name string, from, to State) {
			ch <- [2]State{from, to}
		},
	})

	failN(b, 1)

	select {
	case tr := <-ch:
		assert.Equal(t, StateClosed, tr[0])
		assert.Equal(t, StateOpen, tr[1])
	case <-time.After(time.Second):
		t.Fatal("状态变更回调未触发")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{"默认配置有效", DefaultConfig(), false},
		{"失败阈值为零", &Config{FailureThreshold: 0, SuccessThreshold: 1, Cooldown: time.Second}, true},
		{"成功阈值为零", &Config{FailureThreshold: 1, SuccessThreshold: 0, Cooldown: time.Second}, true},
		{"冷却为零", &Config{FailureThreshold: 1, SuccessThreshold: 1, Cooldown: 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.config.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
