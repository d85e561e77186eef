package pubsub

import "context"

// Driver 底层传输驱动。
// 桥接层负责信封编解码、去重、积压与重连，驱动只搬运字节。
type Driver interface {
	// Publish 发布一条原始消息。key 用于需要分区或路由的驱动
	// 保证同键消息的投递顺序，不支持的驱动可以忽略。
	Publish(ctx context.Context, key string, data []byte) error
	// Subscribe 建立订阅并阻塞消费。订阅就绪后调用 ready，
	// 每收到一条消息调用 receive。连接断开时返回错误，
	// 由桥接层退避后重新调用；ctx 取消时返回 ctx.Err()。
	Subscribe(ctx context.Context, ready func(), receive func(data []byte)) error
	// Close 释放底层连接
	Close() error
}
