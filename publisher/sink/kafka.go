package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/publisher"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultKafkaBatchSize    = 1
	DefaultKafkaBatchBytes   = 1 << 20 // 1MB
	DefaultKafkaBatchTimeout = 10 * time.Millisecond
)

func init() {
	publisher.RegisterSink("kafka", func(config *cfg.PubSubConfiguration) (publisher.Sink, error) {
		kafkaConfig := DefaultKafkaConfig(config.Brokers)
		if config.BatchSize > 0 {
			kafkaConfig.BatchSize = config.BatchSize
		}
		return NewKafkaSink(kafkaConfig)
	})
}

// KafkaSink implements the Sink interface for Kafka publishing
type KafkaSink struct {
	writer *kafka.Writer
}

// KafkaConfig holds configuration for KafkaSink
type KafkaConfig struct {
	Brokers          []string           // Kafka broker addresses
	BatchSize        int                // Messages per write batch (default: 1)
	BatchBytes       int64              // Max batch bytes (default: 1MB)
	BatchTimeout     time.Duration      // Max wait for a batch to fill (default: 10ms)
	RequiredAcks     kafka.RequiredAcks // Ack requirement (default: RequireAll)
	AutoCreateTopics bool               // Auto-create topics if they don't exist (default: true)
}

// DefaultKafkaConfig returns a KafkaConfig with sensible defaults
func DefaultKafkaConfig(brokers []string) KafkaConfig {
	return KafkaConfig{
		Brokers:          brokers,
		BatchSize:        DefaultKafkaBatchSize,
		BatchBytes:       DefaultKafkaBatchBytes,
		BatchTimeout:     DefaultKafkaBatchTimeout,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
	}
}

// NewKafkaSink creates a new KafkaSink with the given configuration
func NewKafkaSink(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}

	if config.BatchSize == 0 {
		config.BatchSize = DefaultKafkaBatchSize
	}
	if config.BatchBytes == 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}
	if config.BatchTimeout == 0 {
		config.BatchTimeout = DefaultKafkaBatchTimeout
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{}, // Partition by key for consistent routing
		BatchSize:              config.BatchSize,
		BatchBytes:             config.BatchBytes,
		BatchTimeout:           config.BatchTimeout,
		RequiredAcks:           config.RequiredAcks,
		Async:                  false, // Sync writes so a failed publish reaches the caller
		AllowAutoTopicCreation: config.AutoCreateTopics,
	}

	return &KafkaSink{writer: writer}, nil
}

// Publish sends a message to Kafka and waits for the configured acks.
// key selects the partition, so one entity's changes stay ordered.
func (k *KafkaSink) Publish(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	return k.writer.WriteMessages(ctx, msg)
}

// Close releases resources held by the KafkaSink
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
