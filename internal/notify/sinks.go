package notify

import (
	"context"

	"go.uber.org/zap"
)

// AMQPPublisher is the subset of the RabbitMQ publisher used for push events.
type AMQPPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// KafkaPublisher is the subset of the Kafka producer used for push events.
type KafkaPublisher interface {
	Publish(ctx context.Context, key string, v any) error
}

type amqpSink struct {
	publisher  AMQPPublisher
	routingKey string
}

// NewAMQPSink publishes notifications to the topic exchange under routingKey.
func NewAMQPSink(publisher AMQPPublisher, routingKey string) Sink {
	return amqpSink{publisher: publisher, routingKey: routingKey}
}

func (s amqpSink) Send(ctx context.Context, n Notification) error {
	return s.publisher.Publish(ctx, s.routingKey, n)
}

type kafkaSink struct {
	producer KafkaPublisher
}

// NewKafkaSink writes notifications keyed by recipient.
func NewKafkaSink(producer KafkaPublisher) Sink {
	return kafkaSink{producer: producer}
}

func (s kafkaSink) Send(ctx context.Context, n Notification) error {
	return s.producer.Publish(ctx, n.RecipientUID, n)
}

type logSink struct {
	log *zap.Logger
}

// NewLogSink only logs; used when no broker is configured.
func NewLogSink(logger *zap.Logger) Sink {
	return logSink{log: logger.Named("notify.log")}
}

func (s logSink) Send(_ context.Context, n Notification) error {
	s.log.Debug("push notification", zap.String("recipient", n.RecipientUID), zap.String("chat_id", n.ChatID))
	return nil
}
