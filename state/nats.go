package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore keeps values in a JetStream key-value bucket so replicas of the
// reactivator share one cursor.
type NatsStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue
}

// NewNatsStore connects to url and creates the bucket if needed
func NewNatsStore(ctx context.Context, url, bucket string) (*NatsStore, error) {
	if url == "" {
		return nil, fmt.Errorf("nats state store requires nats_url")
	}

	nc, err := nats.Connect(url,
		nats.Name("reactivator-state"),
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

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
		Storage: jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure bucket %s: %w", bucket, err)
	}

	return &NatsStore{nc: nc, kv: kv}, nil
}

func (s *NatsStore) Get(ctx context.Context, key string) (string, error) {
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(entry.Value()), nil
}

func (s *NatsStore) Set(ctx context.Context, key, value string) error {
	_, err := s.kv.Put(ctx, key, []byte(value))
	return err
}

func (s *NatsStore) Delete(ctx context.Context, key string) error {
	err := s.kv.Delete(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (s *NatsStore) Close() error {
	s.nc.Close()
	return nil
}
