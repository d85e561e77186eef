package logger

import "time"

// Format 日志输出格式
type Format string

const (
	// JSONFormat JSON 格式，便于采集
	JSONFormat Format = "json"
	// ConsoleFormat 控制台格式，便于阅读
	ConsoleFormat Format = "console"
)

// Config 日志配置
type Config struct {
	// Level 日志级别
	Level Level
	// Format 输出格式
	Format Format
	// Console 是否输出到标准输出
	Console bool
	// File 日志文件路径，空则不写文件
	File string
	// Rotate 文件轮转配置，nil 则不轮转
	Rotate *RotateConfig
	// Sampling 采样配置，nil 则不采样
	Sampling *SamplingConfig
	// EnableCaller 是否记录调用位置
	EnableCaller bool
	// EnableStacktrace 是否在 Error 及以上级别附带堆栈
	EnableStacktrace bool
}

// setDefaults 补全默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
}

// RotateConfig 日志文件轮转配置
type RotateConfig struct {
	// Filename 轮转文件路径
	Filename string
	// MaxSize 单文件最大体积（MB）
	MaxSize int
	// MaxAge 文件最多保留天数
	MaxAge int
	// MaxBackups 最多保留的旧文件数
	MaxBackups int
	// LocalTime 备份文件名使用本地时间
	LocalTime bool
	// Compress 是否压缩旧文件
	Compress bool
}

// setDefaults 补全默认值
func (c *RotateConfig) setDefaults() {
	if c.MaxSize <= 0 {
		c.MaxSize = 100
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 7
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 10
	}
}

// SamplingConfig 日志采样配置，高频重复日志按比例丢弃
type SamplingConfig struct {
	// Tick 采样统计周期
	Tick time.Duration
	// Initial 周期内前 N 条全量输出
	Initial int
	// Thereafter 超出后每 M 条输出一条
	Thereafter int
}

// setDefaults 补全默认值
func (c *SamplingConfig) setDefaults() {
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.Initial <= 0 {
		c.Initial = 100
	}
	if c.Thereafter <= 0 {
		c.Thereafter = 100
	}
}
