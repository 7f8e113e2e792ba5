// Package events relays domain events to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	skafka "github.com/segmentio/kafka-go"
	"github.com/smallbiznis/waitlist/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TypeSignupCreated    = "signup.created"
	TypeReferralRecorded = "referral.recorded"
)

var Module = fx.Module("events",
	fx.Provide(NewFromConfig),
)

// Writer is the subset of kafka.Writer the producer needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, key string, value any) error
	Close() error
}

// Envelope wraps every published payload with its type.
type Envelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Data          json.RawMessage `json:"data"`
}

type KafkaProducer struct {
	writer Writer
	log    *zap.Logger
}

func NewKafkaProducer(brokers []string, topic string, log *zap.Logger) *KafkaProducer {
	w := &skafka.Writer{
		Addr:                   skafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		RequiredAcks:           skafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewKafkaProducerWithWriter(w, log)
}

func NewKafkaProducerWithWriter(w Writer, log *zap.Logger) *KafkaProducer {
	return &KafkaProducer{writer: w, log: log.Named("events.kafka")}
}

// Publish marshals value to JSON and writes it keyed by key, so events of one
// project stay ordered on a partition.
func (p *KafkaProducer) Publish(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, skafka.Message{Key: []byte(key), Value: b}); err != nil {
		p.log.Warn("kafka write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type noopPublisher struct{}

func NewNoopPublisher() Publisher { return noopPublisher{} }

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

func (noopPublisher) Close() error { return nil }

// NewFromConfig returns the Kafka producer when brokers are configured.
func NewFromConfig(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return NewNoopPublisher()
	}
	p := NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return p.Close()
		},
	})
	return p
}
