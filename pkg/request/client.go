package request

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client 事件投递客户端。网关对外的回调类流量（行为上报、
// Webhook 通知）统一经此发出，带重试、签名与调用链传播。
type Client struct {
	cfg  *Config
	http *http.Client
}

// New 创建投递客户端
func New(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig 使用配置创建投递客户端
func NewWithConfig(cfg *Config) *Client {
	transport := cfg.newTransport()
	if cfg.EnableTracing {
		transport = &propagatingTransport{base: transport}
	}
	// 超时由每次尝试的上下文控制，重试各自有完整的时间预算
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport},
	}
}

// Get 构建 GET 请求，用于探活与拉取下游配置
func (c *Client) Get(path string) *Request {
	return newRequest(c, http.MethodGet, path)
}

// Post 构建 POST 请求，事件投递的主通道
func (c *Client) Post(path string) *Request {
	return newRequest(c, http.MethodPost, path)
}

// Put 构建 PUT 请求
func (c *Client) Put(path string) *Request {
	return newRequest(c, http.MethodPut, path)
}

// Delete 构建 DELETE 请求
func (c *Client) Delete(path string) *Request {
	return newRequest(c, http.MethodDelete, path)
}

// deliver 执行投递并按策略重试。重试耗尽后，网络错误包装
// ErrMaxRetry 返回，错误状态码的响应原样交给调用方判断。
func (c *Client) deliver(r *Request) (*Response, error) {
	if r.err != nil {
		return nil, r.err
	}
	target, err := r.targetURL(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	policy := r.retry
	if policy == nil {
		policy = c.cfg.Retry
	}
	if policy == nil {
		return c.attempt(r, target, 1)
	}
	p := *policy
	p.normalize()

	for n := 0; ; n++ {
		resp, err := c.attempt(r, target, n+1)
		if !p.ShouldRetry(resp, err) {
			return resp, err
		}
		if n >= p.MaxRetries {
			if err != nil {
				return nil, ErrMaxRetry.WithError(err)
			}
			return resp, nil
		}
		timer := time.NewTimer(p.backoff(n))
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return nil, ErrTimeout.WithError(r.ctx.Err())
		case <-timer.C:
		}
	}
}

// attempt 单次投递尝试，响应体全量读出以便连接复用
func (c *Client) attempt(r *Request, target string, attempt int) (*Response, error) {
	ctx := r.ctx
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, ErrRequestFailed.WithError(err)
	}
	c.setHeaders(req, r)

	for _, hook := range c.cfg.Hooks {
		if err := hook.BeforeDelivery(ctx, req); err != nil {
			return nil, ErrRequestFailed.WithError(err)
		}
	}

	var span trace.Span
	if c.cfg.EnableTracing {
		ctx, span = otel.Tracer("realtime.request").Start(ctx, r.method+" "+r.path,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.method", r.method),
				attribute.String("http.url", target),
				attribute.Int("delivery.attempt", attempt),
			))
		defer span.End()
		req = req.WithContext(ctx)
	}

	start := time.Now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, ErrRequestFailed.WithError(err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, ErrRequestFailed.WithError(err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
		Elapsed:    time.Since(start),
		Attempt:    attempt,
		Request:    req,
	}
	if span != nil {
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.IsError() {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
	}

	for _, hook := range c.cfg.Hooks {
		if err := hook.AfterDelivery(ctx, resp); err != nil {
			return resp, ErrRequestFailed.WithError(err)
		}
	}
	return resp, nil
}

// setHeaders 依序铺设客户端级请求头、签名头与请求级覆盖。
// 签名每次尝试重算，时间戳保持新鲜以通过接收方的防重放窗口。
func (c *Client) setHeaders(req *http.Request, r *Request) {
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	if c.cfg.SigningKey != "" {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, Sign(c.cfg.SigningKey, ts, r.body))
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
}
