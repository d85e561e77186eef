package request

import (
	"net/http"
	"time"
)

// Config 投递客户端配置
type Config struct {
	// BaseURL 目标服务根地址，相对路径投递时在前面拼接
	BaseURL string

	// Timeout 单次尝试的整体超时，含连接、发送与读取。
	// 零值时不限制，由请求上下文的截止时间兜底。
	Timeout time.Duration

	// UserAgent 请求标识
	UserAgent string

	// Headers 每次投递附带的固定请求头
	Headers map[string]string

	// SigningKey 非空时对投递体做 HMAC-SHA256 签名，
	// 接收方用相同秘钥校验来源与完整性
	SigningKey string

	// Retry 重试策略，nil 表示投递失败不重试
	Retry *RetryConfig

	// Hooks 投递生命周期回调，按注册顺序执行
	Hooks []Hook

	// EnableTracing 为每次尝试生成客户端 span 并注入传播头
	EnableTracing bool

	// InsecureSkipVerify 跳过 TLS 证书校验，仅限内网自签的采集器
	InsecureSkipVerify bool

	// Transport 自定义底层传输，设置后连接池参数失效
	Transport http.RoundTripper

	// PoolMaxIdle 连接池空闲连接总数上限
	PoolMaxIdle int
	// PoolMaxIdlePerHost 每个目标主机的空闲连接上限
	PoolMaxIdlePerHost int
	// PoolIdleTimeout 空闲连接回收时间
	PoolIdleTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout:            10 * time.Second,
		UserAgent:          "realtime-gateway",
		Headers:            make(map[string]string),
		PoolMaxIdle:        64,
		PoolMaxIdlePerHost: 8,
		PoolIdleTimeout:    90 * time.Second,
	}
}

// Option 配置选项函数
type Option func(*Config)

// WithBaseURL 设置目标服务根地址
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTimeout 设置单次尝试超时
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithUserAgent 设置请求标识
func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

// WithHeader 追加固定请求头
func WithHeader(key, value string) Option {
	return func(c *Config) { c.Headers[key] = value }
}

// WithSigningKey 设置投递体签名秘钥
func WithSigningKey(key string) Option {
	return func(c *Config) { c.SigningKey = key }
}

// WithRetry 设置重试策略
func WithRetry(cfg *RetryConfig) Option {
	return func(c *Config) { c.Retry = cfg }
}

// WithHook 追加生命周期回调
func WithHook(h Hook) Option {
	return func(c *Config) { c.Hooks = append(c.Hooks, h) }
}

// WithTracing 启用调用链追踪
func WithTracing(enable bool) Option {
	return func(c *Config) { c.EnableTracing = enable }
}

// WithInsecureSkipVerify 跳过 TLS 证书校验
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Config) { c.InsecureSkipVerify = skip }
}

// WithTransport 设置自定义底层传输
func WithTransport(t http.RoundTripper) Option {
	return func(c *Config) { c.Transport = t }
}

// WithPool 设置连接池参数
func WithPool(maxIdle, maxIdlePerHost int, idleTimeout time.Duration) Option {
	return func(c *Config) {
		c.PoolMaxIdle = maxIdle
		c.PoolMaxIdlePerHost = maxIdlePerHost
		c.PoolIdleTimeout = idleTimeout
	}
}
