package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"safarapi-auth/internal/config"
	"safarapi-auth/internal/model"
	"safarapi-auth/internal/util"
)

// KafkaProducer publishes account lifecycle events for downstream consumers
// (notification and analytics services).
type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaProducer(cfg *config.Config) (*KafkaProducer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("no Kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.Kafka.WriteTimeout,
	}

	util.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic))

	return &KafkaProducer{
		writer: writer,
		topic:  cfg.Kafka.Topic,
	}, nil
}

// Publish writes the event keyed by account ID so events for one account
// stay ordered within a partition.
func (p *KafkaProducer) Publish(ctx context.Context, event model.AuthEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.AccountID),
		Value: payload,
		Time:  time.Now().UTC(),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		util.Error("Failed to publish event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return fmt.Errorf("failed to publish event: %w", err)
	}

	util.Debug("Event published",
		zap.String("event_type", event.EventType),
		zap.String("topic", p.topic))

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
