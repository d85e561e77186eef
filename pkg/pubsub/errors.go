package pubsub

import "errors"

// 预定义错误
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("pubsub: invalid config")
	// ErrClosed 桥接器已关闭
	ErrClosed = errors.New("pubsub: bridge closed")
	// ErrQueued 驱动暂不可达，消息已进入积压队列
	ErrQueued = errors.New("pubsub: driver unreachable, message queued")
	// ErrDropped 积压队列已满，最旧消息被丢弃
	ErrDropped = errors.New("pubsub: backlog full, oldest message dropped")
	// ErrConnect 驱动连接失败
	ErrConnect = errors.New("pubsub: connect failed")
)
