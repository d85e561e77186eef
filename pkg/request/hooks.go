package request

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/tokmz/realtime/pkg/logger"
)

// Hook 投递生命周期回调
type Hook interface {
	// BeforeDelivery 请求发出前调用，返回错误则中止本次投递
	BeforeDelivery(ctx context.Context, req *http.Request) error
	// AfterDelivery 收到响应后调用
	AfterDelivery(ctx context.Context, resp *Response) error
}

// logHook 投递日志
type logHook struct {
	log logger.Logger
}

// NewLogHook 创建投递日志钩子
func NewLogHook(log logger.Logger) Hook {
	if log == nil {
		log = logger.Default()
	}
	return &logHook{log: log}
}

func (h *logHook) BeforeDelivery(ctx context.Context, req *http.Request) error {
	h.log.DebugContext(ctx, "投递开始",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()))
	return nil
}

func (h *logHook) AfterDelivery(ctx context.Context, resp *Response) error {
	h.log.DebugContext(ctx, "投递完成",
		zap.String("method", resp.Request.Method),
		zap.String("url", resp.Request.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Int("attempt", resp.Attempt),
		zap.Duration("elapsed", resp.Elapsed))
	return nil
}

// tokenHook 投递前附加动态令牌，适合会过期的采集服务凭证
type tokenHook struct {
	source func() string
}

// NewTokenHook 创建令牌钩子，source 返回空串时不附加
func NewTokenHook(source func() string) Hook {
	return &tokenHook{source: source}
}

func (h *tokenHook) BeforeDelivery(_ context.Context, req *http.Request) error {
	if token := h.source(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (h *tokenHook) AfterDelivery(context.Context, *Response) error { return nil }
