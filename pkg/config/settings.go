package config

import (
	"fmt"
	"strings"
	"time"
)

// Settings 服务配置树，与配置文件结构一一对应。
// 字段只承载文件值，组件配置在装配时由各自的 Config 构建。
type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Auth     AuthSettings     `mapstructure:"auth"`
	Log      LogSettings      `mapstructure:"log"`
	Tracing  TracingSettings  `mapstructure:"tracing"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Database DatabaseSettings `mapstructure:"database"`
	PubSub   PubSubSettings   `mapstructure:"pubsub"`
	Breaker  BreakerSettings  `mapstructure:"breaker"`
	Limits   LimitSettings    `mapstructure:"limits"`
}

// ServerSettings HTTP 与连接层配置
type ServerSettings struct {
	// Addr 监听地址
	Addr string `mapstructure:"addr"`
	// ID 实例标识，用于跨实例消息去重，空则启动时生成
	ID string `mapstructure:"id"`
	// HeartbeatInterval 服务端心跳间隔
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// ClientTimeout 客户端多久无活动视为失联
	ClientTimeout time.Duration `mapstructure:"client_timeout"`
	// MaxConnections 单实例最大连接数，0 使用内置默认值
	MaxConnections int `mapstructure:"max_connections"`
	// AllowedOrigins 允许的 Origin，空则全部放行
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// EditWindow 消息可编辑与删除的时限
	EditWindow time.Duration `mapstructure:"edit_window"`
}

// AuthSettings 握手鉴权配置
type AuthSettings struct {
	// JWTSecret 签名密钥
	JWTSecret string `mapstructure:"jwt_secret"`
	// Issuer 可接受的签发方，空则不校验
	Issuer string `mapstructure:"issuer"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Console bool   `mapstructure:"console"`
	File    string `mapstructure:"file"`
}

// TracingSettings 链路追踪配置
type TracingSettings struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// RedisSettings Redis 连接配置
type RedisSettings struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// DatabaseSettings 数据库连接配置
type DatabaseSettings struct {
	// Driver 数据库类型：mysql、postgres、sqlite
	Driver string `mapstructure:"driver"`
	// DSN 连接串
	DSN string `mapstructure:"dsn"`
	// Replicas 只读副本连接串
	Replicas        []string      `mapstructure:"replicas"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// PubSubSettings 跨实例广播配置
type PubSubSettings struct {
	// Driver 驱动类型：redis、kafka、rabbitmq、memory
	Driver string `mapstructure:"driver"`
	// Topic 频道或主题名
	Topic string `mapstructure:"topic"`
	// Brokers Kafka broker 地址
	Brokers []string `mapstructure:"brokers"`
	// URL RabbitMQ 连接串
	URL string `mapstructure:"url"`
}

// BreakerSettings 熔断配置
type BreakerSettings struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// LimitRule 单条限流规则
type LimitRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// LimitSettings 限流配置
type LimitSettings struct {
	// Default 兜底规则
	Default LimitRule `mapstructure:"default"`
	// Rules 按事件类型覆盖
	Rules map[string]LimitRule `mapstructure:"rules"`
}

// DefaultSettings 返回默认配置树
func DefaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:              ":8080",
			HeartbeatInterval: 30 * time.Second,
			ClientTimeout:     60 * time.Second,
			EditWindow:        15 * time.Minute,
		},
		Log: LogSettings{
			Level:   "info",
			Format:  "json",
			Console: true,
		},
		Tracing: TracingSettings{
			ServiceName: "realtime",
			SampleRate:  1.0,
		},
		Redis: RedisSettings{
			Addr: "localhost:6379",
		},
		PubSub: PubSubSettings{
			Driver: "memory",
			Topic:  "realtime:events",
		},
		Breaker: BreakerSettings{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Cooldown:         30 * time.Second,
		},
		Limits: LimitSettings{
			Default: LimitRule{Limit: 30, Window: 10 * time.Second},
		},
	}
}

// Validate 验证配置树
func (s *Settings) Validate() error {
	if s.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidSettings)
	}
	if s.Server.HeartbeatInterval <= 0 || s.Server.ClientTimeout <= 0 {
		return fmt.Errorf("%w: server heartbeat/timeout must be positive", ErrInvalidSettings)
	}
	if s.Server.ClientTimeout <= s.Server.HeartbeatInterval {
		return fmt.Errorf("%w: server.client_timeout must exceed heartbeat_interval", ErrInvalidSettings)
	}
	switch s.PubSub.Driver {
	case "redis", "kafka", "rabbitmq", "memory":
	default:
		return fmt.Errorf("%w: unknown pubsub.driver %q", ErrInvalidSettings, s.PubSub.Driver)
	}
	if s.Database.Driver != "" {
		switch s.Database.Driver {
		case "mysql", "postgres", "sqlite", "sqlserver":
		default:
			return fmt.Errorf("%w: unknown database.driver %q", ErrInvalidSettings, s.Database.Driver)
		}
	}
	return nil
}

// LoadSettings 从配置文件加载配置树。
// 环境变量以 REALTIME_ 为前缀覆盖同名键，如 REALTIME_SERVER_ADDR。
func LoadSettings(file string) (*Settings, *Config, error) {
	c := New(
		WithConfigFile(file),
		WithEnvPrefix("REALTIME"),
		WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
	)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}

	settings := DefaultSettings()
	if err := c.Unmarshal(settings); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrConfigParseFailed, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}
	return settings, c, nil
}

// WatchSettings 监控配置文件变更，变更后重新解析整棵配置树并回调。
// 解析或校验失败时丢弃本次变更并走错误上报。
func (c *Config) WatchSettings(fn func(*Settings)) error {
	c.mu.Lock()
	c.onChange = func() {
		settings := DefaultSettings()
		if err := c.Unmarshal(settings); err != nil {
			c.reportError(fmt.Errorf("%w: %w", ErrConfigParseFailed, err))
			return
		}
		if err := settings.Validate(); err != nil {
			c.reportError(err)
			return
		}
		fn(settings)
	}
	c.mu.Unlock()
	return c.StartWatch()
}
