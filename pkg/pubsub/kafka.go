package pubsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

// KafkaConfig Kafka 驱动配置
type KafkaConfig struct {
	// Brokers 节点地址
	Brokers []string `json:"brokers"`
	// Topic 广播主题
	Topic string `json:"topic"`
	// GroupID 消费组。每个实例必须使用独立消费组，
	// 否则广播流会被组内实例分摊而不是每实例一份。
	GroupID string `json:"group_id"`
}

// KafkaDriver 基于 Kafka 的驱动。
// 同房间的消息带相同的分区键，保证房间内的投递顺序。
type KafkaDriver struct {
	producer sarama.SyncProducer
	group    sarama.ConsumerGroup
	topic    string
}

// NewKafkaDriver 创建 Kafka 驱动
func NewKafkaDriver(config *KafkaConfig) (*KafkaDriver, error) {
	if config == nil || len(config.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", ErrInvalidConfig)
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	if config.GroupID == "" {
		return nil, fmt.Errorf("%w: kafka group id is required", ErrInvalidConfig)
	}

	pcfg := sarama.NewConfig()
	pcfg.Producer.Return.Successes = true
	pcfg.Producer.RequiredAcks = sarama.WaitForAll
	pcfg.Producer.Retry.Max = 3
	pcfg.Producer.Timeout = 10 * time.Second
	// 相同房间的消息发到同一分区
	pcfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, pcfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	ccfg := sarama.NewConfig()
	ccfg.Version = sarama.V2_8_0_0
	ccfg.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	ccfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	ccfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, ccfg)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return &KafkaDriver{
		producer: producer,
		group:    group,
		topic:    config.Topic,
	}, nil
}

// Publish 发布消息，key 作为分区键
func (d *KafkaDriver) Publish(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		Value: sarama.ByteEncoder(data),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	_, _, err := d.producer.SendMessage(msg)
	return err
}

// Subscribe 加入消费组并阻塞消费。
// 消费组再均衡后在内部重新加入，只有真正的错误才返回给上层退避。
func (d *KafkaDriver) Subscribe(ctx context.Context, ready func(), receive func(data []byte)) error {
	handler := &kafkaConsumerHandler{ready: ready, receive: receive}
	for {
		if err := d.group.Consume(ctx, []string{d.topic}, handler); err != nil {
			return fmt.Errorf("%w: %w", ErrConnect, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Close 释放生产者与消费组
func (d *KafkaDriver) Close() error {
	gerr := d.group.Close()
	perr := d.producer.Close()
	if gerr != nil {
		return gerr
	}
	return perr
}

// kafkaConsumerHandler 消费组处理器
type kafkaConsumerHandler struct {
	ready   func()
	once    sync.Once
	receive func(data []byte)
}

func (h *kafkaConsumerHandler) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(h.ready)
	return nil
}

func (h *kafkaConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *kafkaConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.receive(message.Value)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
