package pubsub

import (
	"fmt"
	"time"
)

// Config 桥接器配置
type Config struct {
	// Origin 本实例标识，接收端据此跳过自己发布的消息
	Origin string
	// Topic 广播主题（频道、Kafka 主题或交换机名称）
	Topic string
	// QueueSize 驱动不可达时的发送积压上限，满后丢弃最旧消息
	QueueSize int
	// PublishTimeout 单次发布的超时时间
	PublishTimeout time.Duration
	// Reconnect 订阅断开后的重连退避
	Reconnect ReconnectConfig
	// Dedup 跨实例去重配置
	Dedup DedupConfig
	// OnError 异步错误回调（解码失败、重发失败等），为 nil 时静默
	OnError func(err error)
	// OnStateChange 连接状态变化回调
	OnStateChange func(connected bool)
}

// ReconnectConfig 重连退避配置
type ReconnectConfig struct {
	// Initial 首次重连等待时间
	Initial time.Duration
	// Max 重连等待上限
	Max time.Duration
	// Factor 每次失败后的等待放大倍数
	Factor float64
	// Jitter 抖动比例，0.2 表示在 ±20% 内随机浮动
	Jitter float64
}

// DedupConfig 去重配置
type DedupConfig struct {
	// Capacity 布隆过滤器单代容量
	Capacity uint
	// FalsePositiveRate 可接受的误判率
	FalsePositiveRate float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Topic:          "realtime:events",
		QueueSize:      1024,
		PublishTimeout: 5 * time.Second,
		Reconnect: ReconnectConfig{
			Initial: 500 * time.Millisecond,
			Max:     30 * time.Second,
			Factor:  2.0,
			Jitter:  0.2,
		},
		Dedup: DedupConfig{
			Capacity:          100000,
			FalsePositiveRate: 0.01,
		},
	}
}

// Validate 验证配置并填充缺省值
func (c *Config) Validate() error {
	if c.Origin == "" {
		return fmt.Errorf("%w: origin is required", ErrInvalidConfig)
	}
	if c.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.Reconnect.Initial <= 0 {
		c.Reconnect.Initial = 500 * time.Millisecond
	}
	if c.Reconnect.Max < c.Reconnect.Initial {
		c.Reconnect.Max = 30 * time.Second
	}
	if c.Reconnect.Factor < 1 {
		c.Reconnect.Factor = 2.0
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter > 1 {
		c.Reconnect.Jitter = 0.2
	}
	if c.Dedup.Capacity == 0 {
		c.Dedup.Capacity = 100000
	}
	if c.Dedup.FalsePositiveRate <= 0 || c.Dedup.FalsePositiveRate >= 1 {
		c.Dedup.FalsePositiveRate = 0.01
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithOrigin 设置实例标识
func WithOrigin(origin string) Option {
	return func(c *Config) {
		c.Origin = origin
	}
}

// WithTopic 设置广播主题
func WithTopic(topic string) Option {
	return func(c *Config) {
		c.Topic = topic
	}
}

// WithQueueSize 设置发送积压上限
func WithQueueSize(size int) Option {
	return func(c *Config) {
		c.QueueSize = size
	}
}

// WithPublishTimeout 设置发布超时
func WithPublishTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.PublishTimeout = timeout
	}
}

// WithReconnect 设置重连退避
func WithReconnect(rc ReconnectConfig) Option {
	return func(c *Config) {
		c.Reconnect = rc
	}
}

// WithOnError 设置异步错误回调
func WithOnError(fn func(err error)) Option {
	return func(c *Config) {
		c.OnError = fn
	}
}

// WithOnStateChange 设置连接状态回调
func WithOnStateChange(fn func(connected bool)) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}
