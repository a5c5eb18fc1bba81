// Package events publishes order lifecycle events to Kafka. Publishing is
// synchronous and best-effort: the order row is durable before any event is
// emitted, and a publish failure never fails the operation that caused it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/vasiliy-maslov/checkout-backend/internal/config"
)

const (
	TypeOrderPaid    = "order.paid"
	TypeOrderShipped = "order.shipped"
)

type Event struct {
	Type             string    `json:"event"`
	OrderID          string    `json:"order_id"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	AmountTotal      float64   `json:"amount_total,omitempty"`
	At               time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type kafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafka returns a Kafka-backed publisher keyed by order_id, so events for
// one order stay in partition order.
func NewKafka(cfg config.KafkaConfig) Publisher {
	return &kafkaPublisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafkago.LeastBytes{},
		},
	}
}

func (p *kafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(event.OrderID),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("events: failed to publish %s for order %s: %w", event.Type, event.OrderID, err)
	}

	log.Info().Str("event", event.Type).Str("order_id", event.OrderID).Msg("events: published")
	return nil
}

func (p *kafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event Event) error { return nil }
func (Noop) Close() error                                   { return nil }
