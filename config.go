package realtime

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tokmz/realtime/pkg/breaker"
	"github.com/tokmz/realtime/pkg/cache"
	"github.com/tokmz/realtime/pkg/config"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/pubsub"
	"github.com/tokmz/realtime/pkg/ratelimit"
)

// Config 服务配置
type Config struct {
	// ServerID 实例标识，跨实例广播的来源与去重依据，空则启动时生成
	ServerID string

	// 连接配置
	MaxConnections   int           // 最大连接数
	ReadBufferSize   int           // 读缓冲区大小
	WriteBufferSize  int           // 写缓冲区大小
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 单帧最大字节数

	// 心跳配置
	HeartbeatInterval time.Duration // 服务端 ping 间隔
	ClientTimeout     time.Duration // 客户端多久无响应视为失联
	WriteTimeout      time.Duration // 单次写超时

	// 队列配置
	SendQueueSize int // 推送队列大小
	AckQueueSize  int // 回执队列大小，回执优先于普通推送

	// 载荷约束
	MaxContentLength  int // 消息内容最大字符数
	MaxActivityLength int // 状态活动描述最大字符数
	MaxAttachments    int // 单条消息附件上限
	MaxMentions       int // 单条消息提及上限
	MaxEmbeds         int // 单条消息嵌入内容上限

	// 业务时限
	EditWindow   time.Duration // 消息可编辑与删除的时限
	TypingTTL    time.Duration // 输入指示器自动过期时间
	PresenceTTL  time.Duration // 共享在线状态键的过期时间
	OfflineGrace time.Duration // 全部连接断开后多久标记离线

	// 滥用防护
	FloodRate        float64 // 单连接每秒帧数上限
	FloodBurst       int     // 单连接帧数突发上限
	MaxInvalidFrames int32   // 无效帧累计多少次后断开

	// Room 房间配置
	Room RoomConfig

	// ReapInterval 失联连接清理周期
	ReapInterval time.Duration

	// Upgrader 升级器配置
	Upgrader UpgraderConfig

	// Auth 握手鉴权配置
	Auth AuthConfig

	// RateLimit 事件限流配置，nil 使用默认规则
	RateLimit *ratelimit.Config

	// Breaker 依赖熔断基础配置，nil 使用默认值
	Breaker *breaker.Config

	// 协作组件
	Logger    logger.Logger  // 日志，nil 使用默认 Logger
	Metrics   Metrics        // 监控，nil 使用内置计数器
	Store     Store          // 持久化存储，必填
	Cache     cache.Cache    // 共享缓存，nil 时在线人数退化为本实例计数
	Bridge    *pubsub.Bridge // 跨实例广播桥，nil 表示单实例运行
	Analytics AnalyticsSink  // 行为分析接收端，nil 表示不上报
}

// RoomConfig 房间配置
type RoomConfig struct {
	SweepInterval time.Duration // 空房间清理周期
	EmptyRoomTTL  time.Duration // 房间空置多久后回收
}

// UpgraderConfig 升级器配置
type UpgraderConfig struct {
	ReadBufferSize    int                      // 读缓冲区大小
	WriteBufferSize   int                      // 写缓冲区大小
	CheckOrigin       func(*http.Request) bool // Origin 检查函数
	AllowedOrigins    []string                 // 允许的 Origin 白名单
	EnableCompression bool                     // 是否启用压缩
}

// AuthConfig 握手鉴权配置
type AuthConfig struct {
	// Secret JWT 签名密钥，必填
	Secret string
	// Issuer 可接受的签发方，空则不校验
	Issuer string
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:   10000,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,

		HeartbeatInterval: 30 * time.Second,
		ClientTimeout:     90 * time.Second,
		WriteTimeout:      10 * time.Second,

		SendQueueSize: 256,
		AckQueueSize:  64,

		MaxContentLength:  2000,
		MaxActivityLength: 128,
		MaxAttachments:    10,
		MaxMentions:       20,
		MaxEmbeds:         5,

		EditWindow:   5 * time.Minute,
		TypingTTL:    10 * time.Second,
		PresenceTTL:  60 * time.Second,
		OfflineGrace: 30 * time.Second,

		FloodRate:        20,
		FloodBurst:       40,
		MaxInvalidFrames: 10,

		Room: RoomConfig{
			SweepInterval: 5 * time.Minute,
			EmptyRoomTTL:  10 * time.Minute,
		},

		ReapInterval: time.Minute,

		Upgrader: UpgraderConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Validate 验证配置，未设置的限流与熔断配置填入默认值
func (c *Config) Validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("MaxConnections must be positive, got %d", c.MaxConnections)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("ReadBufferSize must be positive, got %d", c.ReadBufferSize)
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("WriteBufferSize must be positive, got %d", c.WriteBufferSize)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("HandshakeTimeout must be positive, got %v", c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("MaxMessageSize must be positive, got %d", c.MaxMessageSize)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HeartbeatInterval must be positive, got %v", c.HeartbeatInterval)
	}
	if c.ClientTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("ClientTimeout (%v) must be greater than HeartbeatInterval (%v)",
			c.ClientTimeout, c.HeartbeatInterval)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("WriteTimeout must be positive, got %v", c.WriteTimeout)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("SendQueueSize must be positive, got %d", c.SendQueueSize)
	}
	if c.AckQueueSize <= 0 {
		return fmt.Errorf("AckQueueSize must be positive, got %d", c.AckQueueSize)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MaxContentLength must be positive, got %d", c.MaxContentLength)
	}
	if c.EditWindow <= 0 {
		return fmt.Errorf("EditWindow must be positive, got %v", c.EditWindow)
	}
	if c.TypingTTL <= 0 {
		return fmt.Errorf("TypingTTL must be positive, got %v", c.TypingTTL)
	}
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("PresenceTTL must be positive, got %v", c.PresenceTTL)
	}
	if c.OfflineGrace < 0 {
		return fmt.Errorf("OfflineGrace must not be negative, got %v", c.OfflineGrace)
	}
	if c.FloodRate <= 0 || c.FloodBurst <= 0 {
		return fmt.Errorf("flood limit must be positive, got rate=%v burst=%d", c.FloodRate, c.FloodBurst)
	}
	if c.MaxInvalidFrames <= 0 {
		return fmt.Errorf("MaxInvalidFrames must be positive, got %d", c.MaxInvalidFrames)
	}
	if c.Room.SweepInterval <= 0 {
		return fmt.Errorf("Room.SweepInterval must be positive, got %v", c.Room.SweepInterval)
	}
	if c.Room.EmptyRoomTTL <= 0 {
		return fmt.Errorf("Room.EmptyRoomTTL must be positive, got %v", c.Room.EmptyRoomTTL)
	}
	if c.ReapInterval <= 0 {
		return fmt.Errorf("ReapInterval must be positive, got %v", c.ReapInterval)
	}

	if c.RateLimit == nil {
		c.RateLimit = ratelimit.DefaultConfig()
	}
	if c.Breaker == nil {
		c.Breaker = breaker.DefaultConfig()
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithServerID 设置实例标识
func WithServerID(id string) Option {
	return func(c *Config) {
		c.ServerID = id
	}
}

// WithMaxConnections 设置最大连接数
func WithMaxConnections(max int) Option {
	return func(c *Config) {
		c.MaxConnections = max
	}
}

// WithHeartbeatInterval 设置心跳间隔
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
	}
}

// WithClientTimeout 设置客户端失联判定时间
func WithClientTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.ClientTimeout = timeout
	}
}

// WithMessageSizeLimit 设置单帧最大字节数
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithEditWindow 设置消息可编辑时限
func WithEditWindow(window time.Duration) Option {
	return func(c *Config) {
		c.EditWindow = window
	}
}

// WithTypingTTL 设置输入指示器过期时间
func WithTypingTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TypingTTL = ttl
	}
}

// WithPresenceTTL 设置共享在线状态过期时间
func WithPresenceTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.PresenceTTL = ttl
	}
}

// WithOfflineGrace 设置离线宽限期
func WithOfflineGrace(grace time.Duration) Option {
	return func(c *Config) {
		c.OfflineGrace = grace
	}
}

// WithFloodLimit 设置单连接帧速率上限
func WithFloodLimit(rate float64, burst int) Option {
	return func(c *Config) {
		c.FloodRate = rate
		c.FloodBurst = burst
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.Upgrader.CheckOrigin = fn
	}
}

// WithAllowedOrigins 设置 Origin 白名单
func WithAllowedOrigins(origins []string) Option {
	return func(c *Config) {
		c.Upgrader.AllowedOrigins = origins
		c.Upgrader.CheckOrigin = newWhitelistChecker(origins)
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境）
func WithAllowAllOrigins() Option {
	return func(c *Config) {
		c.Upgrader.CheckOrigin = func(r *http.Request) bool {
			return true
		}
	}
}

// WithAuth 设置握手鉴权
func WithAuth(secret, issuer string) Option {
	return func(c *Config) {
		c.Auth.Secret = secret
		c.Auth.Issuer = issuer
	}
}

// WithRateLimit 设置限流配置
func WithRateLimit(config *ratelimit.Config) Option {
	return func(c *Config) {
		c.RateLimit = config
	}
}

// WithBreaker 设置熔断基础配置
func WithBreaker(config *breaker.Config) Option {
	return func(c *Config) {
		c.Breaker = config
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithStore 设置持久化存储
func WithStore(s Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

// WithCache 设置共享缓存
func WithCache(c2 cache.Cache) Option {
	return func(c *Config) {
		c.Cache = c2
	}
}

// WithBridge 设置跨实例广播桥
func WithBridge(b *pubsub.Bridge) Option {
	return func(c *Config) {
		c.Bridge = b
	}
}

// WithAnalytics 设置行为分析接收端
func WithAnalytics(sink AnalyticsSink) Option {
	return func(c *Config) {
		c.Analytics = sink
	}
}

// FromSettings 把配置树映射为选项列表，便于从文件与环境变量装配
func FromSettings(st *config.Settings) []Option {
	opts := []Option{
		WithAuth(st.Auth.JWTSecret, st.Auth.Issuer),
	}
	if st.Server.ID != "" {
		opts = append(opts, WithServerID(st.Server.ID))
	}
	if st.Server.MaxConnections > 0 {
		opts = append(opts, WithMaxConnections(st.Server.MaxConnections))
	}
	if st.Server.HeartbeatInterval > 0 {
		opts = append(opts, WithHeartbeatInterval(st.Server.HeartbeatInterval))
	}
	if st.Server.ClientTimeout > 0 {
		opts = append(opts, WithClientTimeout(st.Server.ClientTimeout))
	}
	if st.Server.EditWindow > 0 {
		opts = append(opts, WithEditWindow(st.Server.EditWindow))
	}
	if len(st.Server.AllowedOrigins) > 0 {
		opts = append(opts, WithAllowedOrigins(st.Server.AllowedOrigins))
	}
	if st.Breaker.FailureThreshold > 0 {
		opts = append(opts, WithBreaker(&breaker.Config{
			FailureThreshold: st.Breaker.FailureThreshold,
			SuccessThreshold: st.Breaker.SuccessThreshold,
			Cooldown:         st.Breaker.Cooldown,
		}))
	}
	if st.Limits.Default.Limit > 0 {
		rl := ratelimit.DefaultConfig()
		rl.Default = ratelimit.Rule{Limit: st.Limits.Default.Limit, Window: st.Limits.Default.Window}
		for event, rule := range st.Limits.Rules {
			rl.Rules[event] = ratelimit.Rule{Limit: rule.Limit, Window: rule.Window}
		}
		opts = append(opts, WithRateLimit(rl))
	}
	return opts
}

// defaultCheckOrigin 默认 Origin 检查（同源策略）。
// 空 Origin 放行，非浏览器客户端不携带该头。
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// newWhitelistChecker 创建白名单检查器，支持 https://*.example.com 形式的通配
func newWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	exact := make(map[string]bool, len(allowedOrigins))
	var wildcards []string
	for _, origin := range allowedOrigins {
		if strings.Contains(origin, "*") {
			wildcards = append(wildcards, origin)
			continue
		}
		exact[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if exact[origin] {
			return true
		}
		for _, pattern := range wildcards {
			parts := strings.SplitN(pattern, "*", 2)
			if len(origin) > len(pattern) &&
				strings.HasPrefix(origin, parts[0]) && strings.HasSuffix(origin, parts[1]) {
				return true
			}
		}
		return false
	}
}

// newUpgrader 根据配置构建升级器
func newUpgrader(config *Config) *websocket.Upgrader {
	checkOrigin := config.Upgrader.CheckOrigin
	if checkOrigin == nil {
		if len(config.Upgrader.AllowedOrigins) > 0 {
			checkOrigin = newWhitelistChecker(config.Upgrader.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &websocket.Upgrader{
		ReadBufferSize:    config.Upgrader.ReadBufferSize,
		WriteBufferSize:   config.Upgrader.WriteBufferSize,
		HandshakeTimeout:  config.HandshakeTimeout,
		CheckOrigin:       checkOrigin,
		EnableCompression: config.Upgrader.EnableCompression,
	}
}
