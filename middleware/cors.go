package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig 跨域中间件配置
type CORSConfig struct {
	// AllowOrigins 允许的来源，支持 * 与 *.example.com 形式的通配
	AllowOrigins []string

	// AllowMethods 允许的请求方法
	AllowMethods []string

	// AllowHeaders 允许的请求头
	AllowHeaders []string

	// ExposeHeaders 暴露给客户端的响应头
	ExposeHeaders []string

	// AllowCredentials 是否允许携带凭证
	AllowCredentials bool

	// MaxAge 预检结果缓存时长
	MaxAge time.Duration
}

// DefaultCORSConfig 默认跨域配置
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
}

// CORS 创建跨域中间件。
// WebSocket 握手同样受浏览器同源策略约束，升级端点也要挂载。
func CORS(cfgs ...*CORSConfig) gin.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	allowAllOrigins := false
	exactOrigins := make(map[string]bool)
	wildcardOrigins := make([]string, 0)
	for _, origin := range cfg.AllowOrigins {
		if origin == "*" {
			allowAllOrigins = true
			continue
		}
		if strings.Contains(origin, "*") {
			wildcardOrigins = append(wildcardOrigins, origin)
			continue
		}
		exactOrigins[origin] = true
	}

	if allowAllOrigins && cfg.AllowCredentials {
		panic("middleware: CORS 不允许同时设置 AllowOrigins=* 与 AllowCredentials")
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := ""
	if cfg.MaxAge > 0 {
		maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowed := allowAllOrigins || exactOrigins[origin] || matchWildcard(origin, wildcardOrigins)
		if !allowed {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		h := c.Writer.Header()
		if allowAllOrigins && !cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}
		if exposeHeaders != "" {
			h.Set("Access-Control-Expose-Headers", exposeHeaders)
		}

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// matchWildcard 按 *.example.com 形式匹配来源
func matchWildcard(origin string, patterns []string) bool {
	for _, pattern := range patterns {
		parts := strings.SplitN(pattern, "*", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.HasPrefix(origin, parts[0]) && strings.HasSuffix(origin, parts[1]) {
			return true
		}
	}
	return false
}
