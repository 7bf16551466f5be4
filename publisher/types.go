package publisher

import (
	"context"
	"errors"
)

// ErrPublish is returned when the bus does not accept an event
var ErrPublish = errors.New("publish failed")

// Sink represents a destination for change events (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends one message to the sink
	Publish(ctx context.Context, topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}
