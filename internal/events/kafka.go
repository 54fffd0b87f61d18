package events

import (
	"context"
	"errors"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/spec-kit/incident-service/internal/config"
)

// ErrProducerClosed is returned by Send after Close.
var ErrProducerClosed = errors.New("kafka producer closed")

// Producer writes keyed messages to the notification topic.
type Producer interface {
	Send(ctx context.Context, key, value []byte) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
	mu     sync.Mutex
	closed bool
}

// NewKafkaProducer creates a producer for cfg.Topic. Messages are balanced by
// key so one ticket's events stay ordered on a partition.
func NewKafkaProducer(cfg config.KafkaConfig) (Producer, error) {
	if !cfg.Enabled() {
		return nil, errors.New("no kafka brokers configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{ClientID: cfg.ClientID},
	}

	return &kafkaProducer{writer: writer}, nil
}

// Send sends a message to Kafka.
func (p *kafkaProducer) Send(ctx context.Context, key, value []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProducerClosed
	}
	p.mu.Unlock()

	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close flushes and closes the writer.
func (p *kafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	return p.writer.Close()
}
