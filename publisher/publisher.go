package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/maxpert/reactivator/cdc"
	"github.com/rs/zerolog/log"
)

// Publisher writes change envelopes to a sink
type Publisher struct {
	sink    Sink
	timeout time.Duration
}

// New creates a publisher. Each publish is bounded by timeout; zero means
// only the caller's context bounds it.
func New(sink Sink, timeout time.Duration) *Publisher {
	return &Publisher{sink: sink, timeout: timeout}
}

// Publish sends env to topic as a single-element JSON array
func (p *Publisher) Publish(ctx context.Context, topic string, env cdc.Envelope) error {
	data, err := Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublish, env.Key(), err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.sink.Publish(ctx, topic, env.Key(), data); err != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrPublish, topic, err)
	}

	log.Debug().
		Str("topic", topic).
		Str("key", env.Key()).
		Int("bytes", len(data)).
		Msg("Published change event")

	return nil
}

// Close closes the sink
func (p *Publisher) Close() error {
	return p.sink.Close()
}

// Marshal encodes env as the bus message body
func Marshal(env cdc.Envelope) ([]byte, error) {
	return json.Marshal([]cdc.Envelope{env})
}
