package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

// KafkaEventSink publishes envelopes to a Kafka topic keyed by Envelope.Key,
// so all events of one order land on the same partition in order.
type KafkaEventSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaEventSink dials brokers and returns a sink publishing to topic.
func NewKafkaEventSink(brokers []string, topic string, logger *slog.Logger) (*KafkaEventSink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Idempotent = true
	config.Producer.Timeout = 5 * time.Second
	config.Net.MaxOpenRequests = 1

	prod, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaEventSinkFromProducer(prod, topic, logger), nil
}

// NewKafkaEventSinkFromProducer wraps an existing producer.
func NewKafkaEventSinkFromProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaEventSink{producer: producer, topic: topic, logger: logger}
}

// Append implements EventSink.
func (k *KafkaEventSink) Append(ctx context.Context, envelope Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(envelope.Key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(envelope.Type)},
			{Key: []byte("idempotency_key"), Value: []byte(envelope.IdempotencyKey)},
		},
	}

	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", envelope.Type, k.topic, err)
	}
	k.logger.Debug("Event published",
		"topic", k.topic,
		"partition", partition,
		"offset", offset,
		"type", envelope.Type)
	return nil
}

// Close flushes and closes the producer.
func (k *KafkaEventSink) Close() error {
	return k.producer.Close()
}
