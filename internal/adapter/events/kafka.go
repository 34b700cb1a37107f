// Package events publishes committed ledger facts to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payment-ledger/config"
	"payment-ledger/internal/core/domain"
	"payment-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one JSON message per ledger event, keyed by payment id
// so every event of a payment lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
	log    zerolog.Logger
}

// NewKafkaWriter builds the writer for cfg.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

func NewKafkaPublisher(writer MessageWriter, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, log: log}
}

// Publish implements ports.EventPublisher.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(event.PaymentID.String()),
		Value: body,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}

	p.log.Debug().
		Str("event_type", string(event.Type)).
		Str("payment_id", event.PaymentID.String()).
		Msg("ledger event published")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops events when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, domain.LedgerEvent) error { return nil }

var (
	_ ports.EventPublisher = (*KafkaPublisher)(nil)
	_ ports.EventPublisher = NoopPublisher{}
)
