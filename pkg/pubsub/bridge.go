package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Envelope 跨实例广播信封
type Envelope struct {
	// ID 全局唯一消息标识，接收端据此去重
	ID string `json:"id"`
	// Origin 发布实例标识
	Origin string `json:"origin"`
	// Room 目标房间，为空表示全局广播
	Room string `json:"room,omitempty"`
	// Event 事件类型
	Event string `json:"event"`
	// Payload 事件载荷
	Payload json.RawMessage `json:"payload,omitempty"`
	// Timestamp 发布时间，毫秒时间戳
	Timestamp int64 `json:"ts"`
}

// Handler 处理来自其他实例的信封
type Handler func(ctx context.Context, env *Envelope)

// Stats 桥接器运行统计
type Stats struct {
	Connected   bool  `json:"connected"`
	Published   int64 `json:"published"`
	Received    int64 `json:"received"`
	SelfSkipped int64 `json:"self_skipped"`
	Deduped     int64 `json:"deduped"`
	Dropped     int64 `json:"dropped"`
	Malformed   int64 `json:"malformed"`
	Reconnects  int64 `json:"reconnects"`
	Backlog     int   `json:"backlog"`
}

// Bridge 跨实例事件桥接器。
// 发布端在驱动不可达时把消息放入有界积压队列，恢复后按序补发；
// 订阅端断线后按指数退避重连，并对收到的信封做来源与 ID 去重。
// outbound 待补发的出站消息
type outbound struct {
	key  string
	data []byte
}

type Bridge struct {
	config  *Config
	driver  Driver
	handler Handler

	pending chan outbound
	dedup   *dedup

	connected atomic.Bool

	published   atomic.Int64
	received    atomic.Int64
	selfSkipped atomic.Int64
	deduped     atomic.Int64
	dropped     atomic.Int64
	malformed   atomic.Int64
	reconnects  atomic.Int64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// New 创建桥接器
func New(config *Config, driver Driver) (*Bridge, error) {
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidConfig)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		config:  config,
		driver:  driver,
		pending: make(chan outbound, config.QueueSize),
		dedup:   newDedup(config.Dedup.Capacity, config.Dedup.FalsePositiveRate),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// NewWithOptions 使用选项创建桥接器
func NewWithOptions(driver Driver, opts ...Option) (*Bridge, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	return New(config, driver)
}

// Start 启动订阅与补发循环，handler 收到的信封均来自其他实例
func (b *Bridge) Start(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler is required", ErrInvalidConfig)
	}
	b.startOnce.Do(func() {
		b.handler = handler
		b.wg.Add(2)
		go b.subscribeLoop()
		go b.flushLoop()
	})
	return nil
}

// Publish 向其他实例广播一条事件。
// 驱动可达时直接发布，不可达时进入积压队列等待补发，
// 队列满则丢弃最旧消息。返回的错误仅供记录，调用方不应据此失败。
func (b *Bridge) Publish(ctx context.Context, room, event string, payload any) error {
	select {
	case <-b.ctx.Done():
		return ErrClosed
	default:
	}

	env := &Envelope{
		ID:        uuid.NewString(),
		Origin:    b.config.Origin,
		Room:      room,
		Event:     event,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("pubsub: marshal payload: %w", err)
		}
		env.Payload = data
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pubsub: marshal envelope: %w", err)
	}

	if b.connected.Load() {
		pctx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
		err = b.driver.Publish(pctx, room, data)
		cancel()
		if err == nil {
			b.published.Add(1)
			return nil
		}
	}
	return b.enqueue(outbound{key: room, data: data})
}

// Healthy 订阅是否在线
func (b *Bridge) Healthy() bool {
	return b.connected.Load()
}

// Stats 返回运行统计
func (b *Bridge) Stats() Stats {
	return Stats{
		Connected:   b.connected.Load(),
		Published:   b.published.Load(),
		Received:    b.received.Load(),
		SelfSkipped: b.selfSkipped.Load(),
		Deduped:     b.deduped.Load(),
		Dropped:     b.dropped.Load(),
		Malformed:   b.malformed.Load(),
		Reconnects:  b.reconnects.Load(),
		Backlog:     len(b.pending),
	}
}

// Close 停止循环并释放驱动连接，积压中未补发的消息被放弃
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.cancel()
		b.wg.Wait()
		err = b.driver.Close()
	})
	return err
}

// enqueue 把消息放入积压队列，队列满时先弹出最旧一条
func (b *Bridge) enqueue(msg outbound) error {
	for {
		select {
		case b.pending <- msg:
			return ErrQueued
		default:
		}
		select {
		case <-b.pending:
			b.dropped.Add(1)
			b.reportError(ErrDropped)
		default:
		}
	}
}

// subscribeLoop 维持订阅，断开后按指数退避重连
func (b *Bridge) subscribeLoop() {
	defer b.wg.Done()
	wait := b.config.Reconnect.Initial
	for {
		err := b.driver.Subscribe(b.ctx, func() {
			wait = b.config.Reconnect.Initial
			b.setConnected(true)
		}, b.onRaw)
		b.setConnected(false)
		if b.ctx.Err() != nil {
			return
		}
		if err != nil {
			b.reportError(fmt.Errorf("pubsub: subscribe: %w", err))
		}
		b.reconnects.Add(1)
		select {
		case <-b.ctx.Done():
			return
		case <-time.After(b.jitter(wait)):
		}
		wait = b.nextWait(wait)
	}
}

// flushLoop 按序补发积压消息
func (b *Bridge) flushLoop() {
	defer b.wg.Done()
	for {
		var msg outbound
		select {
		case <-b.ctx.Done():
			return
		case msg = <-b.pending:
		}
		b.resend(msg)
	}
}

// resend 以退避重试单条积压消息，直到成功或桥接器关闭
func (b *Bridge) resend(msg outbound) {
	wait := b.config.Reconnect.Initial
	for {
		pctx, cancel := context.WithTimeout(b.ctx, b.config.PublishTimeout)
		err := b.driver.Publish(pctx, msg.key, msg.data)
		cancel()
		if err == nil {
			b.published.Add(1)
			return
		}
		b.reportError(fmt.Errorf("pubsub: resend: %w", err))
		select {
		case <-b.ctx.Done():
			return
		case <-time.After(b.jitter(wait)):
		}
		wait = b.nextWait(wait)
	}
}

// onRaw 解码收到的信封并在去重后交给处理函数
func (b *Bridge) onRaw(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.reportError(fmt.Errorf("pubsub: handler panic: %v", r))
		}
	}()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		b.malformed.Add(1)
		b.reportError(fmt.Errorf("pubsub: decode envelope: %w", err))
		return
	}
	if env.Origin == b.config.Origin {
		b.selfSkipped.Add(1)
		return
	}
	if env.ID != "" && b.dedup.seen(env.ID) {
		b.deduped.Add(1)
		return
	}
	b.received.Add(1)
	b.handler(b.ctx, &env)
}

func (b *Bridge) setConnected(connected bool) {
	if b.connected.Swap(connected) == connected {
		return
	}
	if cb := b.config.OnStateChange; cb != nil {
		cb(connected)
	}
}

func (b *Bridge) reportError(err error) {
	if cb := b.config.OnError; cb != nil {
		cb(err)
	}
}

// jitter 在配置比例内随机浮动等待时间
func (b *Bridge) jitter(wait time.Duration) time.Duration {
	j := b.config.Reconnect.Jitter
	if j <= 0 {
		return wait
	}
	delta := (rand.Float64()*2 - 1) * j * float64(wait)
	return wait + time.Duration(delta)
}

// nextWait 计算下一次退避等待，封顶于配置上限
func (b *Bridge) nextWait(wait time.Duration) time.Duration {
	next := time.Duration(float64(wait) * b.config.Reconnect.Factor)
	if next > b.config.Reconnect.Max {
		next = b.config.Reconnect.Max
	}
	return next
}
