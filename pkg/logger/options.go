package logger

// Option 配置选项
type Option func(*Config)

// WithLevel 设置日志级别
func WithLevel(level Level) Option {
	return func(c *Config) {
		c.Level = level
	}
}

// WithFormat 设置输出格式
func WithFormat(format Format) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithConsoleOutput 输出到标准输出
func WithConsoleOutput() Option {
	return func(c *Config) {
		c.Console = true
	}
}

// WithFileOutput 输出到文件
func WithFileOutput(path string) Option {
	return func(c *Config) {
		c.File = path
	}
}

// WithRotate 启用文件轮转
func WithRotate(rotate *RotateConfig) Option {
	return func(c *Config) {
		c.Rotate = rotate
	}
}

// WithSampling 启用采样
func WithSampling(sampling *SamplingConfig) Option {
	return func(c *Config) {
		c.Sampling = sampling
	}
}

// WithCaller 记录调用位置
func WithCaller(enable bool) Option {
	return func(c *Config) {
		c.EnableCaller = enable
	}
}

// WithStacktrace 在错误日志附带堆栈
func WithStacktrace(enable bool) Option {
	return func(c *Config) {
		c.EnableStacktrace = enable
	}
}
