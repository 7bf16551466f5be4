package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/publisher"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/puzpuzpuz/xsync/v3"
)

func init() {
	publisher.RegisterSink("nats", func(config *cfg.PubSubConfiguration) (publisher.Sink, error) {
		if config.NatsURL == "" {
			return nil, fmt.Errorf("nats sink requires nats_url")
		}
		return NewNatsSink(config.NatsURL)
	})
}

// NatsSink implements the Sink interface for NATS JetStream publishing
type NatsSink struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	streams *xsync.MapOf[string, struct{}] // Streams ensured by this sink
}

// NewNatsSink creates a new NATS JetStream sink
func NewNatsSink(url string) (*NatsSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("reactivator-pubsub"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &NatsSink{nc: nc, js: js, streams: xsync.NewMapOf[string, struct{}]()}, nil
}

// Publish sends a message to NATS JetStream
// topic: JetStream subject (e.g., "my-source-change")
// key: Message key (stored as header for routing)
func (n *NatsSink) Publish(ctx context.Context, topic, key string, value []byte) error {
	if err := n.ensureStream(ctx, topic); err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: topic,
		Data:    value,
		Header:  nats.Header{"key": []string{key}},
	}

	if _, err := n.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return nil
}

func (n *NatsSink) ensureStream(ctx context.Context, topic string) error {
	if _, ok := n.streams.Load(topic); ok {
		return nil
	}

	streamName := sanitizeStreamName(topic)
	_, err := n.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{topic},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	n.streams.Store(topic, struct{}{})
	return nil
}

// Close releases resources held by the NatsSink
func (n *NatsSink) Close() error {
	if n.nc != nil {
		n.nc.Close()
	}
	return nil
}

// sanitizeStreamName converts a topic to a valid JetStream stream name.
// Stream names can't contain ".", "*", ">" or whitespace.
func sanitizeStreamName(topic string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, topic)
}
