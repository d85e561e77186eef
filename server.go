package realtime

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tokmz/realtime/middleware"
	"github.com/tokmz/realtime/pkg/logger"
	"github.com/tokmz/realtime/pkg/tracing"
)

// 内置路由路径
const (
	wsPath      = "/ws"
	healthPath  = "/healthz"
	metricsPath = "/metrics"
)

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	// Addr 监听地址
	Addr string

	// Mode Gin 运行模式
	Mode string

	// ReadTimeout 握手阶段读超时，升级完成后连接改由心跳超时管理
	ReadTimeout time.Duration
	// WriteTimeout 握手阶段写超时
	WriteTimeout time.Duration
	// IdleTimeout Keep-Alive 空闲超时
	IdleTimeout time.Duration
	// MaxHeaderBytes 请求头大小上限
	MaxHeaderBytes int

	// TrustedProxies 信任的代理网段，影响客户端 IP 解析
	TrustedProxies []string

	// ShutdownTimeout 优雅关机超时
	ShutdownTimeout time.Duration

	// OpsTimeout 运维端点请求超时
	OpsTimeout time.Duration

	// CORS 跨域配置，nil 表示不挂载
	CORS *middleware.CORSConfig

	// Handshake 升级端点限流配置，nil 使用默认规则
	Handshake *middleware.RateLimitConfig

	// EnableTracing 是否挂载链路追踪中间件
	EnableTracing bool

	// DisableBanner 是否关闭启动横幅
	DisableBanner bool

	// BeforeShutdown 关机前回调
	BeforeShutdown func()
	// AfterShutdown 关机后回调
	AfterShutdown func()
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:            ":8080",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
		OpsTimeout:      5 * time.Second,
	}
}

// ServerOption 服务器配置选项
type ServerOption func(*ServerConfig)

// WithServerAddr 设置监听地址
func WithServerAddr(addr string) ServerOption {
	return func(c *ServerConfig) {
		c.Addr = addr
	}
}

// WithServerMode 设置 Gin 运行模式
func WithServerMode(mode string) ServerOption {
	return func(c *ServerConfig) {
		c.Mode = mode
	}
}

// WithShutdownTimeout 设置优雅关机超时
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ShutdownTimeout = d
	}
}

// WithTrustedProxies 设置信任的代理网段
func WithTrustedProxies(proxies []string) ServerOption {
	return func(c *ServerConfig) {
		c.TrustedProxies = proxies
	}
}

// WithCORS 设置跨域配置
func WithCORS(cfg *middleware.CORSConfig) ServerOption {
	return func(c *ServerConfig) {
		c.CORS = cfg
	}
}

// WithHandshakeLimit 设置升级端点限流
func WithHandshakeLimit(cfg *middleware.RateLimitConfig) ServerOption {
	return func(c *ServerConfig) {
		c.Handshake = cfg
	}
}

// WithTracingMiddleware 挂载链路追踪中间件，需要先初始化全局 TracerProvider
func WithTracingMiddleware() ServerOption {
	return func(c *ServerConfig) {
		c.EnableTracing = true
	}
}

// WithShutdownHooks 设置关机前后回调
func WithShutdownHooks(before, after func()) ServerOption {
	return func(c *ServerConfig) {
		c.BeforeShutdown = before
		c.AfterShutdown = after
	}
}

// WithoutBanner 关闭启动横幅
func WithoutBanner() ServerOption {
	return func(c *ServerConfig) {
		c.DisableBanner = true
	}
}

// Server 承载实时服务的 HTTP 服务器。
// 负责路由与中间件装配、升级端点暴露和带信号处理的优雅关机。
type Server struct {
	config *ServerConfig
	engine *gin.Engine
	server *http.Server
	svc    *Service
	log    logger.Logger
}

// NewServer 创建服务器并装配默认中间件与内置路由
func NewServer(svc *Service, opts ...ServerOption) *Server {
	cfg := DefaultServerConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	// gin.SetMode 是全局状态，进程内建议只创建一个 Server
	if gin.Mode() == gin.DebugMode || cfg.Mode != gin.DebugMode {
		gin.SetMode(cfg.Mode)
	}
	silenceGin()

	engine := gin.New()
	log := svc.logger

	engine.Use(middleware.Recovery(log))
	// 升级成功的请求在连接关闭时才返回，访问日志只会得到一条
	// 时长等于连接寿命的记录，连接的建立与断开由服务自身记录
	engine.Use(middleware.Logger(log, &middleware.LoggerConfig{
		ExcludePaths: []string{wsPath},
	}))
	if cfg.EnableTracing {
		engine.Use(tracing.Middleware(tracing.WithFilter(func(c *gin.Context) bool {
			path := c.Request.URL.Path
			return path != wsPath && path != healthPath
		})))
	}
	if cfg.CORS != nil {
		engine.Use(middleware.CORS(cfg.CORS))
	}

	if cfg.TrustedProxies != nil {
		if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
			log.Warn("设置信任代理失败", zap.Error(err))
		}
	}

	s := &Server{
		config: cfg,
		engine: engine,
		svc:    svc,
		log:    log,
	}
	s.registerRoutes()
	return s
}

// Use 注册全局中间件，需在 Run 之前调用
func (s *Server) Use(middlewares ...gin.HandlerFunc) {
	s.engine.Use(middlewares...)
}

// Engine 返回底层 gin.Engine，供挂载额外路由
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes 注册内置路由
func (s *Server) registerRoutes() {
	s.engine.GET(wsPath, middleware.RateLimit(s.config.Handshake), func(c *gin.Context) {
		s.svc.HandleUpgrade(c.Writer, c.Request)
	})

	ops := s.engine.Group("", middleware.Timeout(s.config.OpsTimeout), middleware.Gzip())
	ops.GET(healthPath, s.handleHealth)
	ops.GET(metricsPath, s.handleMetrics)
}

// handleHealth 健康检查，依赖降级时返回 503
func (s *Server) handleHealth(c *gin.Context) {
	h := s.svc.Health()
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

// handleMetrics 暴露监控数据。
// Prometheus 实现走标准抓取协议，内置计数器输出 JSON 快照，
// 其余自定义实现由外部系统自行暴露。
func (s *Server) handleMetrics(c *gin.Context) {
	switch m := s.svc.Metrics().(type) {
	case *PrometheusMetrics:
		promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}).ServeHTTP(c.Writer, c.Request)
	case interface{ Snapshot() MetricsSnapshot }:
		c.JSON(http.StatusOK, m.Snapshot())
	default:
		c.Status(http.StatusNoContent)
	}
}

// Run 启动实时服务与 HTTP 服务器，阻塞直到收到退出信号或启动失败
func (s *Server) Run(addr ...string) error {
	address := s.config.Addr
	if len(addr) > 0 && addr[0] != "" {
		address = addr[0]
	}

	s.server = &http.Server{
		Addr:           address,
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	if err := s.svc.Start(); err != nil {
		return err
	}

	if !s.config.DisableBanner {
		s.printBanner(address)
	}

	return s.serve(func() error {
		return s.server.ListenAndServe()
	})
}

// RunTLS 以 TLS 启动，其余行为与 Run 一致
func (s *Server) RunTLS(addr, certFile, keyFile string) error {
	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	if err := s.svc.Start(); err != nil {
		return err
	}

	if !s.config.DisableBanner {
		s.printBanner(addr)
	}

	return s.serve(func() error {
		return s.server.ListenAndServeTLS(certFile, keyFile)
	})
}

// serve 统一的启动与信号处理逻辑
func (s *Server) serve(startFunc func() error) error {
	errChan := make(chan error, 1)

	go func() {
		if err := startFunc(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		s.log.Info("收到退出信号，正在关闭服务器", zap.String("signal", sig.String()))
	}

	return s.gracefulShutdown()
}

// gracefulShutdown 优雅关机。
// 先停止接收新请求，再关闭已升级的长连接，
// 被劫持的连接不在 http.Server.Shutdown 的等待范围内。
func (s *Server) gracefulShutdown() error {
	if s.config.BeforeShutdown != nil {
		s.config.BeforeShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var firstErr error
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error("HTTP 服务器关闭失败", zap.Error(err))
		firstErr = err
	}
	if err := s.svc.Shutdown(ctx); err != nil {
		s.log.Error("实时服务关闭失败", zap.Error(err))
		if firstErr == nil {
			firstErr = err
		}
	}

	if s.config.AfterShutdown != nil {
		s.config.AfterShutdown()
	}

	if firstErr == nil {
		s.log.Info("服务器已退出")
	}
	return firstErr
}

// Shutdown 手动关闭服务器与实时服务
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.BeforeShutdown != nil {
		s.config.BeforeShutdown()
	}

	var firstErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := s.svc.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	if s.config.AfterShutdown != nil {
		s.config.AfterShutdown()
	}
	return firstErr
}
