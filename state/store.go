// Package state persists the reactivator's cursor in a durable key-value
// store. Get returns an empty string with a nil error when the key is absent.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxpert/reactivator/cfg"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when the store cannot be reached or fails a
// read or write.
var ErrUnavailable = errors.New("state store unavailable")

// Store is a string key-value store
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open creates the store selected by c. Every call on the returned store is
// bounded by c.TimeoutMS and its failures wrap ErrUnavailable.
func Open(ctx context.Context, c *cfg.StateConfiguration) (Store, error) {
	var (
		store Store
		err   error
	)

	switch c.Type {
	case cfg.StatePebble:
		store, err = NewPebbleStore(c.DataDir, c.Name)
	case cfg.StateNats:
		store, err = NewNatsStore(ctx, c.NatsURL, c.Name)
	case cfg.StatePostgres:
		store, err = NewPostgresStore(ctx, c.DatabaseURL, c.Name)
	case cfg.StateMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown state store type: %s", c.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	log.Info().
		Str("type", c.Type).
		Str("name", c.Name).
		Msg("State store opened")

	return WithTimeout(store, time.Duration(c.TimeoutMS)*time.Millisecond), nil
}

type guarded struct {
	store   Store
	timeout time.Duration
}

// WithTimeout bounds every call on store by timeout and wraps failures with
// ErrUnavailable. A zero timeout only wraps.
func WithTimeout(store Store, timeout time.Duration) Store {
	return &guarded{store: store, timeout: timeout}
}

func (g *guarded) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, g.timeout)
}

func (g *guarded) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := g.ctx(ctx)
	defer cancel()

	v, err := g.store.Get(ctx, key)
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return v, nil
}

func (g *guarded) Set(ctx context.Context, key, value string) error {
	ctx, cancel := g.ctx(ctx)
	defer cancel()

	if err := g.store.Set(ctx, key, value); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (g *guarded) Delete(ctx context.Context, key string) error {
	ctx, cancel := g.ctx(ctx)
	defer cancel()

	if err := g.store.Delete(ctx, key); err != nil {
		return unavailable("delete", key, err)
	}
	return nil
}

func (g *guarded) Close() error {
	return g.store.Close()
}

func unavailable(op, key string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s %q: %w", ErrUnavailable, op, key, err)
}
