package pubsub

import (
	"context"
	"fmt"
	"sync"
)

// subscriberBuffer 单个订阅者的接收缓冲
const subscriberBuffer = 256

// MemoryBroker 进程内消息总线。
// 多个驱动共享同一个总线即可互通，用于单实例部署与测试。
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[int]chan []byte
	next   int
	closed bool
}

// NewMemoryBroker 创建进程内总线
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[int]chan []byte),
	}
}

// Close 关闭总线，所有订阅者的接收通道被关闭
func (mb *MemoryBroker) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	for id, ch := range mb.subs {
		close(ch)
		delete(mb.subs, id)
	}
}

func (mb *MemoryBroker) publish(data []byte) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return fmt.Errorf("%w: broker closed", ErrConnect)
	}
	for _, ch := range mb.subs {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

func (mb *MemoryBroker) attach() (int, chan []byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return 0, nil, fmt.Errorf("%w: broker closed", ErrConnect)
	}
	id := mb.next
	mb.next++
	ch := make(chan []byte, subscriberBuffer)
	mb.subs[id] = ch
	return id, ch, nil
}

func (mb *MemoryBroker) detach(id int) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if ch, ok := mb.subs[id]; ok {
		close(ch)
		delete(mb.subs, id)
	}
}

// MemoryDriver 进程内驱动
type MemoryDriver struct {
	broker *MemoryBroker
	owned  bool
}

// NewMemoryDriver 创建进程内驱动。
// broker 为 nil 时创建私有总线，并随驱动一起关闭。
func NewMemoryDriver(broker *MemoryBroker) *MemoryDriver {
	owned := false
	if broker == nil {
		broker = NewMemoryBroker()
		owned = true
	}
	return &MemoryDriver{broker: broker, owned: owned}
}

// Publish 向总线上的所有订阅者投递消息，进程内无分区概念，key 被忽略
func (d *MemoryDriver) Publish(ctx context.Context, key string, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return d.broker.publish(data)
}

// Subscribe 阻塞消费总线消息，直到 ctx 取消或总线关闭
func (d *MemoryDriver) Subscribe(ctx context.Context, ready func(), receive func(data []byte)) error {
	id, ch, err := d.broker.attach()
	if err != nil {
		return err
	}
	defer d.broker.detach(id)
	ready()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-ch:
			if !ok {
				return fmt.Errorf("%w: broker closed", ErrConnect)
			}
			receive(data)
		}
	}
}

// Close 释放驱动，私有总线随之关闭
func (d *MemoryDriver) Close() error {
	if d.owned {
		d.broker.Close()
	}
	return nil
}
