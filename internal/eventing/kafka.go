package eventing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of kafka.Writer used by the forwarder.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a synchronous writer for a topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
}

// KafkaForwarder writes bus events to Kafka as JSON envelopes.
type KafkaForwarder struct {
	writer  MessageWriter
	keyFunc func(event any) string
	logger  *zap.Logger
}

// NewKafkaForwarder constructs a forwarder. keyFunc selects the partition key and may be nil.
func NewKafkaForwarder(writer MessageWriter, keyFunc func(event any) string, logger *zap.Logger) (*KafkaForwarder, error) {
	if writer == nil {
		return nil, errors.New("kafka forwarder: nil writer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaForwarder{writer: writer, keyFunc: keyFunc, logger: logger}, nil
}

// Handle is an EventHandler forwarding one event.
func (f *KafkaForwarder) Handle(ctx context.Context, event any) error {
	env, err := BuildEnvelope(event)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}
	if f.keyFunc != nil {
		if key := f.keyFunc(event); key != "" {
			msg.Key = []byte(key)
		}
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Warn("kafka forwarder: write failed", zap.String("event_id", env.EventID), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the underlying writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
