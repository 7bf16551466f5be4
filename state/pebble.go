package state

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/reactivator/encoding"
)

const prefixCursor = "/cursor/"

// The store holds a handful of keys
const (
	memTableSize          = 4 << 20
	l0CompactionThreshold = 2
)

// cursorRecord is the value stored per key
type cursorRecord struct {
	Value     string `msgpack:"v"`
	UpdatedAt int64  `msgpack:"ts"`
}

// PebbleStore keeps values in a local Pebble database at {dataDir}/{name}
type PebbleStore struct {
	db   *pebble.DB
	path string
}

// NewPebbleStore opens or creates the store
func NewPebbleStore(dataDir, name string) (*PebbleStore, error) {
	path := filepath.Join(dataDir, name)

	db, err := pebble.Open(path, &pebble.Options{
		MemTableSize:          memTableSize,
		L0CompactionThreshold: l0CompactionThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble store at %s: %w", path, err)
	}

	return &PebbleStore{db: db, path: path}, nil
}

func (s *PebbleStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	val, closer, err := s.db.Get([]byte(prefixCursor + key))
	if err == pebble.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer closer.Close()

	var rec cursorRecord
	if err := encoding.Unmarshal(val, &rec); err != nil {
		return "", fmt.Errorf("corrupted value for %s: %w", key, err)
	}
	return rec.Value, nil
}

func (s *PebbleStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encoding.Marshal(cursorRecord{Value: value, UpdatedAt: time.Now().UnixNano()})
	if err != nil {
		return err
	}
	return s.db.Set([]byte(prefixCursor+key), data, pebble.Sync)
}

func (s *PebbleStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Delete([]byte(prefixCursor+key), pebble.Sync)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
