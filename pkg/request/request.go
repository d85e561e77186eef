package request

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"
)

// Request 单次投递的链式构建器
type Request struct {
	client  *Client
	method  string
	path    string
	headers map[string]string
	query   url.Values
	body    []byte
	timeout time.Duration
	ctx     context.Context
	retry   *RetryConfig
	err     error // 构建期错误，Do 时返回
}

func newRequest(c *Client, method, path string) *Request {
	return &Request{
		client: c,
		method: method,
		path:   path,
		ctx:    context.Background(),
	}
}

// SetContext 绑定上下文，取消与截止时间随之生效
func (r *Request) SetContext(ctx context.Context) *Request {
	if ctx != nil {
		r.ctx = ctx
	}
	return r
}

// SetBody 设置 JSON 投递体，重试时原样重放
func (r *Request) SetBody(v any) *Request {
	data, err := json.Marshal(v)
	if err != nil {
		r.err = ErrMarshal.WithError(err)
		return r
	}
	r.body = data
	return r
}

// SetHeader 设置请求头，覆盖客户端级同名头
func (r *Request) SetHeader(key, value string) *Request {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

// SetQuery 追加查询参数
func (r *Request) SetQuery(key, value string) *Request {
	if r.query == nil {
		r.query = make(url.Values)
	}
	r.query.Set(key, value)
	return r
}

// SetIdempotencyKey 设置幂等键，重试投递携带相同值供接收方去重
func (r *Request) SetIdempotencyKey(key string) *Request {
	return r.SetHeader(HeaderIdempotencyKey, key)
}

// SetBearerToken 设置固定令牌
func (r *Request) SetBearerToken(token string) *Request {
	return r.SetHeader("Authorization", "Bearer "+token)
}

// SetTimeout 覆盖客户端级单次尝试超时
func (r *Request) SetTimeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// SetRetry 覆盖客户端级重试策略
func (r *Request) SetRetry(cfg *RetryConfig) *Request {
	r.retry = cfg
	return r
}

// Do 执行投递
func (r *Request) Do() (*Response, error) {
	return r.client.deliver(r)
}

// targetURL 拼出完整地址，绝对地址原样使用
func (r *Request) targetURL(base string) (string, error) {
	full := r.path
	if base != "" && !strings.HasPrefix(full, "http://") && !strings.HasPrefix(full, "https://") {
		full = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(full, "/")
	}
	if len(r.query) == 0 {
		return full, nil
	}
	u, err := url.Parse(full)
	if err != nil {
		return "", ErrInvalidURL.WithError(err)
	}
	q := u.Query()
	for key, values := range r.query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
