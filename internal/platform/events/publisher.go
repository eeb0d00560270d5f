// Package events publishes committed domain events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Topics carrying back-office events.
const (
	TopicStockMovements = "stock.movements"
	TopicOrderStatus    = "orders.status"
	TopicOrderPayments  = "orders.payments"
	TopicReceipts       = "procurement.receipts"
)

// Envelope wraps an event payload with the metadata consumers use for dedupe.
type Envelope struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// NewEnvelope builds an envelope whose ID is derived from type, key and time, so a
// redelivered hook produces the same ID.
func NewEnvelope(eventType, key string, at time.Time, payload any) Envelope {
	name := fmt.Sprintf("%s:%s:%d", eventType, key, at.UnixNano())
	return Envelope{
		ID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		Type:       eventType,
		Key:        key,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// Publisher delivers envelopes to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
	Close() error
}

// Config configures the Kafka producer.
type Config struct {
	Brokers     []string
	ClientID    string
	TopicPrefix string
}

// KafkaPublisher sends envelopes through a sarama async producer.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	prefix   string
	logger   *slog.Logger
	done     chan struct{}
}

// NewKafkaPublisher dials the brokers and starts draining producer errors.
func NewKafkaPublisher(cfg Config, logger *slog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: no brokers configured")
	}
	config := sarama.NewConfig()
	if cfg.ClientID != "" {
		config.ClientID = cfg.ClientID
	}
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("events: start producer: %w", err)
	}
	return newKafkaPublisher(producer, cfg.TopicPrefix, logger), nil
}

func newKafkaPublisher(producer sarama.AsyncProducer, prefix string, logger *slog.Logger) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &KafkaPublisher{producer: producer, prefix: strings.TrimSuffix(prefix, "."), logger: logger, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for err := range producer.Errors() {
			topic := ""
			if err.Msg != nil {
				topic = err.Msg.Topic
			}
			p.logger.Error("kafka publish failed", slog.String("topic", topic), slog.Any("error", err.Err))
		}
	}()
	return p
}

func (p *KafkaPublisher) topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

// Publish queues the envelope. Delivery failures surface in the error log.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", env.Type, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic(topic),
		Key:   sarama.StringEncoder(env.Key),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-id"), Value: []byte(env.ID.String())},
			{Key: []byte("event-type"), Value: []byte(env.Type)},
		},
	}
	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes buffered messages and waits for the error drain to finish.
func (p *KafkaPublisher) Close() error {
	err := p.producer.Close()
	<-p.done
	return err
}

// NopPublisher drops every envelope. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Envelope) error { return nil }
func (NopPublisher) Close() error                                  { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)
