package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProducerAPI publishes order lifecycle events.
type ProducerAPI interface {
	PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	logger.Info("kafka producer initialized", zap.String("topic", topic), zap.Strings("brokers", brokers))
	return &Producer{writer: w, topic: topic, logger: logger}
}

// PublishOrderEvent keys messages by order id so one order's events stay in
// one partition, in order.
func (p *Producer) PublishOrderEvent(ctx context.Context, evt models.OrderEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.OrderID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish order event",
			zap.String("order_id", evt.OrderID),
			zap.String("event_type", evt.Type),
			zap.String("topic", p.topic),
			zap.Error(err),
		)
		return err
	}
	p.logger.Debug("order event published",
		zap.String("order_id", evt.OrderID),
		zap.String("event_type", evt.Type),
		zap.String("topic", p.topic),
	)
	return nil
}

func (p *Producer) Close() error {
	p.logger.Info("closing kafka writer", zap.String("topic", p.topic))
	return p.writer.Close()
}
