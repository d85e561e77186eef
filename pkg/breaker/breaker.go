package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrOpen 熔断器处于打开状态，调用被直接拒绝
	ErrOpen = errors.New("breaker: circuit open")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("breaker: invalid config")
)

// State 熔断器状态
type State int32

const (
	// StateClosed 关闭状态，调用正常放行
	StateClosed State = iota
	// StateOpen 打开状态，调用被直接拒绝
	StateOpen
	// StateHalfOpen 半开状态，放行探测调用
	StateHalfOpen
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Name 熔断器名称，用于日志与指标
	Name string
	// FailureThreshold 关闭状态下连续失败多少次后打开
	FailureThreshold int
	// SuccessThreshold 半开状态下连续成功多少次后关闭
	SuccessThreshold int
	// Cooldown 打开状态持续多久后进入半开
	Cooldown time.Duration
	// OnStateChange 状态变更回调，在锁外调用
	OnStateChange func(name string, from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Name:             "default",
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.FailureThreshold <= 0 || c.SuccessThreshold <= 0 || c.Cooldown <= 0 {
		return ErrInvalidConfig
	}
	if c.Name == "" {
		c.Name = "default"
	}
	return nil
}

// Counts 熔断器累计计数
type Counts struct {
	Calls    int64 // 放行的调用总数
	Failures int64 // 失败总数
	Rejected int64 // 因打开状态被拒绝的总数
}

// Breaker 熔断器。包裹对外部依赖的调用，连续失败达到阈值后
// 在冷却期内直接拒绝，避免故障扩散。
type Breaker struct {
	config *Config

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time

	calls    atomic.Int64
	fails    atomic.Int64
	rejected atomic.Int64
}

// New 创建熔断器
func New(config *Config) (*Breaker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Breaker{
		config: config,
		state:  StateClosed,
	}, nil
}

// Name 返回熔断器名称
func (b *Breaker) Name() string {
	return b.config.Name
}

// State 返回当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(time.Now())
}

// stateLocked 返回当前状态，打开状态冷却期满时顺带切换到半开
func (b *Breaker) stateLocked(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.config.Cooldown {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

// Counts 返回累计计数
func (b *Breaker) Counts() Counts {
	return Counts{
		Calls:    b.calls.Load(),
		Failures: b.fails.Load(),
		Rejected: b.rejected.Load(),
	}
}

// Execute 将一次调用包进熔断器。打开状态下直接返回 ErrOpen，
// 其余状态执行 op 并记录成败。
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		b.rejected.Add(1)
		return err
	}

	b.calls.Add(1)
	err := op(ctx)
	if err != nil {
		b.fails.Add(1)
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// Do 将一次有返回值的调用包进熔断器。打开状态或调用失败时
// 返回 T 的零值与错误。
func Do[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stateLocked(time.Now()) == StateOpen {
		return ErrOpen
	}
	return nil
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// 探测失败，重新打开并重置冷却
		b.transitionLocked(StateOpen)
	}
}

// transitionLocked 执行状态切换，调用方必须持有锁
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case StateClosed:
		b.failures = 0
		b.successes = 0
	case StateOpen:
		b.openedAt = time.Now()
		b.successes = 0
	case StateHalfOpen:
		b.successes = 0
	}

	if cb := b.config.OnStateChange; cb != nil {
		// 锁外回调，避免回调内再触碰熔断器时死锁
		go cb(b.config.Name, from, to)
	}
}
