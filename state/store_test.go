package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maxpert/reactivator/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStoreContract(t *testing.T, s Store) {
	ctx := context.Background()

	v, err := s.Get(ctx, "database_cursor")
	require.NoError(t, err)
	assert.Equal(t, "", v, "absent key reads as empty")

	require.NoError(t, s.Set(ctx, "database_cursor", "c1"))
	v, err = s.Get(ctx, "database_cursor")
	require.NoError(t, err)
	assert.Equal(t, "c1", v)

	require.NoError(t, s.Set(ctx, "database_cursor", "c2"))
	v, err = s.Get(ctx, "database_cursor")
	require.NoError(t, err)
	assert.Equal(t, "c2", v, "set overwrites")

	v, err = s.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.Delete(ctx, "database_cursor"))
	v, err = s.Get(ctx, "database_cursor")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.Delete(ctx, "never_set"))
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, NewMemoryStore())
}

func TestPebbleStore(t *testing.T) {
	s, err := NewPebbleStore(t.TempDir(), "drasi-state")
	require.NoError(t, err)
	defer s.Close()

	testStoreContract(t, s)
}

func TestPebbleStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewPebbleStore(dir, "drasi-state")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "database_cursor", "638400000000000000"))
	require.NoError(t, s.Close())

	s, err = NewPebbleStore(dir, "drasi-state")
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, "database_cursor")
	require.NoError(t, err)
	assert.Equal(t, "638400000000000000", v)
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), &cfg.StateConfiguration{
		Type: cfg.StatePebble, Name: "drasi-state", Key: "database_cursor", DataDir: t.TempDir(), TimeoutMS: 1000,
	})
	require.NoError(t, err)
	defer s.Close()
	testStoreContract(t, s)

	m, err := Open(context.Background(), &cfg.StateConfiguration{Type: cfg.StateMemory, Name: "m"})
	require.NoError(t, err)
	testStoreContract(t, m)

	_, err = Open(context.Background(), &cfg.StateConfiguration{Type: "redis", Name: "r"})
	assert.Error(t, err)
}

func TestOpen_MissingURLsAreUnavailable(t *testing.T) {
	_, err := Open(context.Background(), &cfg.StateConfiguration{Type: cfg.StateNats, Name: "b"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = Open(context.Background(), &cfg.StateConfiguration{Type: cfg.StatePostgres, Name: "t"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

type failingStore struct {
	err   error
	block bool
}

func (f *failingStore) Get(ctx context.Context, key string) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", f.err
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func (f *failingStore) Delete(ctx context.Context, key string) error { return f.err }
func (f *failingStore) Close() error                                 { return nil }

func TestWithTimeout_WrapsErrUnavailable(t *testing.T) {
	boom := errors.New("connection refused")
	s := WithTimeout(&failingStore{err: boom}, time.Second)

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, boom)

	err = s.Set(context.Background(), "k", "v")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.Delete(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestWithTimeout_BoundsCalls(t *testing.T) {
	s := WithTimeout(&failingStore{block: true}, 20*time.Millisecond)

	start := time.Now()
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = s.Set(context.Background(), "k", "v")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTableIdentifier(t *testing.T) {
	assert.Equal(t, `"drasi-state"`, tableIdentifier("drasi-state"))
	assert.Equal(t, `"a""b"`, tableIdentifier(`a"b`))
}
