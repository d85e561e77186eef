package realtime

import "errors"

var (
	// ErrTooManyConnections 达到最大连接数
	ErrTooManyConnections = errors.New("realtime: too many connections")
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("realtime: connection closed")
	// ErrQueueFull 发送队列已满
	ErrQueueFull = errors.New("realtime: send queue full")
	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("realtime: service closed")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("realtime: invalid config")
	// ErrAuthRequired 握手缺少令牌
	ErrAuthRequired = errors.New("realtime: authentication required")
	// ErrInvalidToken 令牌无效或已过期
	ErrInvalidToken = errors.New("realtime: invalid token")
	// ErrStoreRequired 缺少存储实现
	ErrStoreRequired = errors.New("realtime: store is required")
)
