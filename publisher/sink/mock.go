package sink

import (
	"context"
	"sync"
)

// MockSink is a mock implementation of Sink for testing
type MockSink struct {
	Messages   []MockMessage
	PublishErr error
	mu         sync.Mutex
}

// MockMessage represents a published message for testing
type MockMessage struct {
	Topic string
	Key   string
	Value []byte
}

// Publish records a message for later inspection in tests
func (m *MockSink) Publish(ctx context.Context, topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.Messages = append(m.Messages, MockMessage{
		Topic: topic,
		Key:   key,
		Value: value,
	})

	return nil
}

// Published returns a copy of the recorded messages
func (m *MockSink) Published() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.Messages...)
}

// SetError makes subsequent publishes fail with err (nil to recover)
func (m *MockSink) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishErr = err
}

// Close is a no-op for MockSink
func (m *MockSink) Close() error {
	return nil
}

// Reset clears all recorded messages
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
}
