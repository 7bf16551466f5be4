package state

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryStore keeps values in process memory. Values do not survive a
// restart.
type MemoryStore struct {
	m *xsync.MapOf[string, string]
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: xsync.NewMapOf[string, string]()}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, _ := s.m.Load(key)
	return v, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.Store(key, value)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.Delete(key)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
