package middleware

import (
	"compress/gzip"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// GzipConfig 响应压缩中间件配置
type GzipConfig struct {
	// Level 压缩级别
	Level int

	// MinLength 小于该字节数的响应不压缩
	MinLength int

	// ExcludePaths 排除的路径
	ExcludePaths []string
}

// DefaultGzipConfig 默认压缩配置
func DefaultGzipConfig() *GzipConfig {
	return &GzipConfig{
		Level:     gzip.DefaultCompression,
		MinLength: 1024,
	}
}

// gzipWriterPools 按压缩级别复用 gzip.Writer
var gzipWriterPools sync.Map

func gzipWriterPool(level int) *sync.Pool {
	if p, ok := gzipWriterPools.Load(level); ok {
		return p.(*sync.Pool)
	}
	pool := &sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, level)
			return w
		},
	}
	actual, _ := gzipWriterPools.LoadOrStore(level, pool)
	return actual.(*sync.Pool)
}

// Gzip 创建响应压缩中间件。
// 先缓冲到阈值再决定是否压缩，小响应直接透传。
// 升级端点不要挂载，WebSocket 的压缩由升级器按扩展协商。
func Gzip(cfgs ...*GzipConfig) gin.HandlerFunc {
	cfg := DefaultGzipConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.Level < gzip.HuffmanOnly || cfg.Level > gzip.BestCompression {
		cfg.Level = gzip.DefaultCompression
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = 1024
	}

	skipMap := make(map[string]bool)
	for _, path := range cfg.ExcludePaths {
		skipMap[path] = true
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}
		if !strings.Contains(c.Request.Header.Get("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}
		// 升级请求不压缩
		if strings.EqualFold(c.Request.Header.Get("Upgrade"), "websocket") {
			c.Next()
			return
		}

		gw := &gzipResponseWriter{
			ResponseWriter: c.Writer,
			level:          cfg.Level,
			minLength:      cfg.MinLength,
		}
		c.Writer = gw
		defer gw.finish()

		c.Next()
	}
}

// gzipResponseWriter 缓冲响应体，达到阈值后切换为压缩输出
type gzipResponseWriter struct {
	gin.ResponseWriter
	level     int
	minLength int

	buf        []byte
	gz         *gzip.Writer
	compressed bool
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	if w.compressed {
		return w.gz.Write(data)
	}

	w.buf = append(w.buf, data...)
	if len(w.buf) < w.minLength {
		return len(data), nil
	}

	// 达到阈值，启用压缩并刷出缓冲
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Add("Vary", "Accept-Encoding")
	w.Header().Del("Content-Length")

	pool := gzipWriterPool(w.level)
	w.gz = pool.Get().(*gzip.Writer)
	w.gz.Reset(w.ResponseWriter)
	w.compressed = true

	if _, err := w.gz.Write(w.buf); err != nil {
		return len(data), err
	}
	w.buf = nil
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// finish 刷出剩余数据并归还压缩器
func (w *gzipResponseWriter) finish() {
	if w.compressed {
		w.gz.Close()
		gzipWriterPool(w.level).Put(w.gz)
		w.gz = nil
		return
	}
	if len(w.buf) > 0 {
		w.ResponseWriter.Write(w.buf)
		w.buf = nil
	}
}
