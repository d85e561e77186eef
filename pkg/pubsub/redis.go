package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig Redis 驱动配置
type RedisConfig struct {
	// Addrs 节点地址，单地址为单机模式，多地址为集群模式
	Addrs []string `json:"addrs"`
	// MasterName 哨兵模式的主节点名称，非空时启用哨兵模式
	MasterName string `json:"master_name"`
	// Password 密码
	Password string `json:"password"`
	// DB 数据库编号，集群模式下忽略
	DB int `json:"db"`
	// Topic 广播频道
	Topic string `json:"topic"`
}

// RedisDriver 基于 Redis Pub/Sub 的驱动
type RedisDriver struct {
	client redis.UniversalClient
	topic  string
	owned  bool
}

// NewRedisDriver 创建 Redis 驱动并确认连通
func NewRedisDriver(config *RedisConfig) (*RedisDriver, error) {
	if config == nil || len(config.Addrs) == 0 {
		return nil, fmt.Errorf("%w: redis addrs are required", ErrInvalidConfig)
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      config.Addrs,
		MasterName: config.MasterName,
		Password:   config.Password,
		DB:         config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &RedisDriver{client: client, topic: config.Topic, owned: true}, nil
}

// NewRedisDriverWithClient 复用已有客户端创建驱动，关闭驱动不会关闭客户端
func NewRedisDriverWithClient(client redis.UniversalClient, topic string) (*RedisDriver, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrInvalidConfig)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	return &RedisDriver{client: client, topic: topic}, nil
}

// Publish 发布消息到广播频道。Redis Pub/Sub 按发布顺序投递，key 被忽略
func (d *RedisDriver) Publish(ctx context.Context, key string, data []byte) error {
	return d.client.Publish(ctx, d.topic, data).Err()
}

// Subscribe 订阅广播频道并阻塞消费
func (d *RedisDriver) Subscribe(ctx context.Context, ready func(), receive func(data []byte)) error {
	sub := d.client.Subscribe(ctx, d.topic)
	defer sub.Close()

	// 确认订阅建立成功
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	// ctx 取消时主动关闭订阅，让消息通道退出
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-stop:
		}
	}()

	ready()
	for msg := range sub.Channel() {
		receive([]byte(msg.Payload))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: subscription closed", ErrConnect)
}

// Close 释放连接，复用的客户端由创建方负责关闭
func (d *RedisDriver) Close() error {
	if d.owned {
		return d.client.Close()
	}
	return nil
}
