package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRecovery(t *testing.T) {
	t.Run("panic返回500", func(t *testing.T) {
		r := gin.New()
		r.Use(Recovery())
		r.GET("/boom", func(c *gin.Context) {
			panic("boom")
		})

		w := performRequest(r, http.MethodGet, "/boom", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "internal server error")
	})

	t.Run("正常请求不受影响", func(t *testing.T) {
		r := gin.New()
		r.Use(Recovery())
		r.GET("/ok", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		w := performRequest(r, http.MethodGet, "/ok", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCORS(t *testing.T) {
	t.Run("默认允许所有来源", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS())
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := performRequest(r, http.MethodGet, "/", map[string]string{"Origin": "https://example.com"})
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("精确匹配来源", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS(&CORSConfig{
			AllowOrigins: []string{"https://app.example.com"},
			AllowMethods: []string{"GET"},
		}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := performRequest(r, http.MethodGet, "/", map[string]string{"Origin": "https://app.example.com"})
		assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

		w = performRequest(r, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example.net"})
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("通配子域名", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS(&CORSConfig{
			AllowOrigins: []string{"https://*.example.com"},
			AllowMethods: []string{"GET"},
		}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := performRequest(r, http.MethodGet, "/", map[string]string{"Origin": "https://chat.example.com"})
		assert.Equal(t, "https://chat.example.com", w.Header().Get("Access-Control-Allow-Origin"))

		w = performRequest(r, http.MethodGet, "/", map[string]string{"Origin": "https://example.org"})
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("预检请求返回204", func(t *testing.T) {
		r := gin.New()
		r.Use(CORS())
		r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := performRequest(r, http.MethodOptions, "/", map[string]string{
			"Origin":                        "https://example.com",
			"Access-Control-Request-Method": "POST",
		})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("通配来源加凭证触发panic", func(t *testing.T) {
		assert.Panics(t, func() {
			CORS(&CORSConfig{
				AllowOrigins:     []string{"*"},
				AllowCredentials: true,
			})
		})
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("超出突发上限返回429", func(t *testing.T) {
		r := gin.New()
		r.Use(RateLimit(&RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             2,
		}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		codes := make([]int, 0, 3)
		for i := 0; i < 3; i++ {
			w := performRequest(r, http.MethodGet, "/", nil)
			codes = append(codes, w.Code)
		}
		assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	})

	t.Run("不同键互不影响", func(t *testing.T) {
		r := gin.New()
		r.Use(RateLimit(&RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             1,
			KeyFunc: func(c *gin.Context) string {
				return c.GetHeader("X-Key")
			},
		}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := performRequest(r, http.MethodGet, "/", map[string]string{"X-Key": "a"})
		assert.Equal(t, http.StatusOK, w.Code)
		w = performRequest(r, http.MethodGet, "/", map[string]string{"X-Key": "a"})
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		w = performRequest(r, http.MethodGet, "/", map[string]string{"X-Key": "b"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("SkipFunc跳过限流", func(t *testing.T) {
		r := gin.New()
		r.Use(RateLimit(&RateLimitConfig{
			RequestsPerSecond: 1,
			Burst:             1,
			SkipFunc: func(c *gin.Context) bool {
				return true
			},
		}))
		r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		for i := 0; i < 5; i++ {
			w := performRequest(r, http.MethodGet, "/", nil)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}

func TestTokenBucket(t *testing.T) {
	t.Run("按速率补充令牌", func(t *testing.T) {
		b := &tokenBucket{
			tokens:   0,
			capacity: 10,
			rate:     100,
			lastFill: time.Now().Add(-50 * time.Millisecond),
		}
		assert.True(t, b.take())
	})

	t.Run("令牌不超过容量", func(t *testing.T) {
		b := &tokenBucket{
			tokens:   1,
			capacity: 2,
			rate:     1000,
			lastFill: time.Now().Add(-time.Hour),
		}
		assert.True(t, b.take())
		assert.True(t, b.take())
		assert.False(t, b.take())
	})
}

func TestTimeout(t *testing.T) {
	t.Run("快速请求正常返回", func(t *testing.T) {
		r := gin.New()
		r.Use(Timeout(time.Second))
		r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

		w := performRequest(r, http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("超时返回408", func(t *testing.T) {
		r := gin.New()
		r.Use(Timeout(10 * time.Millisecond))
		r.GET("/slow", func(c *gin.Context) {
			<-c.Request.Context().Done()
		})

		w := performRequest(r, http.MethodGet, "/slow", nil)
		assert.Equal(t, http.StatusRequestTimeout, w.Code)
	})
}

func TestGzip(t *testing.T) {
	t.Run("小响应不压缩", func(t *testing.T) {
		r := gin.New()
		r.Use(Gzip())
		r.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, "tiny")
		})

		w := performRequest(r, http.MethodGet, "/", map[string]string{"Accept-Encoding": "gzip"})
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, "tiny", w.Body.String())
	})

	t.Run("大响应压缩", func(t *testing.T) {
		body := strings.Repeat("realtime ", 500)
		r := gin.New()
		r.Use(Gzip())
		r.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, body)
		})

		w := performRequest(r, http.MethodGet, "/", map[string]string{"Accept-Encoding": "gzip"})
		require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

		gr, err := gzip.NewReader(w.Body)
		require.NoError(t, err)
		decoded, err := io.ReadAll(gr)
		require.NoError(t, err)
		assert.Equal(t, body, string(decoded))
	})

	t.Run("客户端不支持时透传", func(t *testing.T) {
		body := strings.Repeat("realtime ", 500)
		r := gin.New()
		r.Use(Gzip())
		r.GET("/", func(c *gin.Context) {
			c.String(http.StatusOK, body)
		})

		w := performRequest(r, http.MethodGet, "/", nil)
		assert.Empty(t, w.Header().Get("Content-Encoding"))
		assert.Equal(t, body, w.Body.String())
	})
}

func TestLoggerMiddleware(t *testing.T) {
	t.Run("排除路径不影响处理", func(t *testing.T) {
		r := gin.New()
		r.Use(Logger(nil, &LoggerConfig{ExcludePaths: []string{"/healthz"}}))
		r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
		r.GET("/other", func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/healthz", nil).Code)
		assert.Equal(t, http.StatusOK, performRequest(r, http.MethodGet, "/other", nil).Code)
	})
}
