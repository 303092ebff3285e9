//go:build cgo

package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

func init() {
	Register("kafka", newKafkaConsumer)
}

type kafkaConsumer struct {
	client *kafka.Consumer
	logger *slog.Logger
}

func newKafkaConsumer(cfg Config, logger *slog.Logger) (Consumer, error) {
	cm := kafka.ConfigMap{"enable.partition.eof": true}
	for k, v := range cfg.Properties() {
		if err := cm.SetKey(k, v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", k, err)
		}
	}

	client, err := kafka.NewConsumer(&cm)
	if err != nil {
		return nil, fmt.Errorf("new consumer: %w", err)
	}
	logger.Debug("kafka consumer created",
		slog.String("bootstrap_servers", cfg.BootstrapServers),
		slog.String("group_id", cfg.GroupID))
	return &kafkaConsumer{client: client, logger: logger}, nil
}

func (c *kafkaConsumer) Subscribe(topic string) error {
	if err := c.client.SubscribeTopics([]string{topic}, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *kafkaConsumer) Poll(ctx context.Context, timeout time.Duration) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch e := c.client.Poll(int(timeout.Milliseconds())).(type) {
	case nil:
		return nil, nil
	case *kafka.Message:
		if e.TopicPartition.Error != nil {
			return nil, &TransientError{Err: e.TopicPartition.Error}
		}
		msg := &Message{
			Partition: e.TopicPartition.Partition,
			Offset:    int64(e.TopicPartition.Offset),
			Key:       e.Key,
			Value:     e.Value,
			Timestamp: e.Timestamp,
		}
		if e.TopicPartition.Topic != nil {
			msg.Topic = *e.TopicPartition.Topic
		}
		return msg, nil
	case kafka.PartitionEOF:
		eof := PartitionEOF{Partition: e.Partition, Offset: int64(e.Offset)}
		if e.Topic != nil {
			eof.Topic = *e.Topic
		}
		return eof, nil
	case kafka.Error:
		if e.IsFatal() {
			return nil, fmt.Errorf("kafka: %w", e)
		}
		return nil, &TransientError{Err: e}
	default:
		// Rebalances are handled by librdkafka; offset commits and stats are ignored.
		c.logger.Debug("ignoring kafka event", slog.String("event", e.String()))
		return nil, nil
	}
}

func (c *kafkaConsumer) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("closing kafka consumer: %w", err)
	}
	return nil
}
