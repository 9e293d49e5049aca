package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes engine events to one topic with kafka-go. Messages
// with the same key land on the same partition.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer builds a synchronous writer that waits for every in-sync
// replica. log receives the writer's internal errors; nil discards them.
func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	sugar := log.Sugar()

	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  3,
			BatchSize:    1,
			WriteTimeout: 5 * time.Second,
			ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
				sugar.Warnf("kafka-go: "+msg, args...)
			}),
		},
	}
}

func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		return fmt.Errorf("kafka: publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
