package request

import "github.com/tokmz/realtime/pkg/errors"

// HTTP 客户端错误码
const (
	// CodeRequestFailed 请求失败
	CodeRequestFailed = "REQUEST_FAILED"
	// CodeTimeout 请求超时
	CodeTimeout = "REQUEST_TIMEOUT"
	// CodeMarshal 序列化失败
	CodeMarshal = "MARSHAL_FAILED"
	// CodeUnmarshal 反序列化失败
	CodeUnmarshal = "UNMARSHAL_FAILED"
	// CodeMaxRetry 重试次数已用尽
	CodeMaxRetry = "RETRY_EXHAUSTED"
	// CodeInvalidURL 无效的 URL
	CodeInvalidURL = "INVALID_URL"
)

var (
	// ErrRequestFailed 请求失败
	ErrRequestFailed = errors.New(CodeRequestFailed, "request failed")
	// ErrTimeout 请求超时
	ErrTimeout = errors.New(CodeTimeout, "request timed out")
	// ErrMarshal 序列化失败
	ErrMarshal = errors.New(CodeMarshal, "failed to marshal request body")
	// ErrUnmarshal 反序列化失败
	ErrUnmarshal = errors.New(CodeUnmarshal, "failed to unmarshal response body")
	// ErrMaxRetry 重试次数已用尽
	ErrMaxRetry = errors.New(CodeMaxRetry, "retry attempts exhausted")
	// ErrInvalidURL 无效的 URL
	ErrInvalidURL = errors.New(CodeInvalidURL, "invalid url")
)
