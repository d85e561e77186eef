package request

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response 投递响应
type Response struct {
	// StatusCode HTTP 状态码
	StatusCode int
	// Header 响应头
	Header http.Header
	// Body 响应体
	Body []byte
	// Elapsed 产生本响应的尝试耗时
	Elapsed time.Duration
	// Attempt 产生本响应的尝试序号，从 1 起
	Attempt int
	// Request 实际发出的请求
	Request *http.Request
}

// IsSuccess 是否 2xx 响应
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError 是否 4xx 或 5xx 响应
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Decode 把响应体按 JSON 解析到 v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return ErrUnmarshal.WithError(err)
	}
	return nil
}

// String 响应体文本
func (r *Response) String() string {
	return string(r.Body)
}

// As 执行投递并把成功响应解析为 *T，错误状态码转为错误返回
func As[T any](req *Request) (*T, error) {
	resp, err := req.Do()
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, statusError(resp)
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// maxErrorBody 错误信息里保留的响应体长度
const maxErrorBody = 512

// statusError 把错误响应转为带截断响应体的错误
func statusError(resp *Response) error {
	body := resp.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return ErrRequestFailed.WithMessage(
		"HTTP " + http.StatusText(resp.StatusCode) + ": " + string(body))
}
