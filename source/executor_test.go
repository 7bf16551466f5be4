package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maxpert/reactivator/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	bootstrap  []Row
	changes    []Row
	position   string
	err        error
	lastCursor string
	block      bool
	closed     bool
}

func (f *fakeEngine) Bootstrap(ctx context.Context) ([]Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bootstrap, nil
}

func (f *fakeEngine) Changes(ctx context.Context, cursor string) ([]Row, error) {
	f.lastCursor = cursor
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.changes, nil
}

func (f *fakeEngine) Position(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.position, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func sourceConfig() *cfg.SourceConfiguration {
	return &cfg.SourceConfiguration{
		Engine:         cfg.EngineKusto,
		IdentityField:  "id",
		QueryTimeoutMS: 1000,
	}
}

func TestExecutor_PreservesOrder(t *testing.T) {
	engine := &fakeEngine{changes: []Row{
		{"id": "3", "v": 1},
		{"id": "1", "v": 2},
		{"id": "2", "v": 3},
	}}
	exec, err := NewExecutor(engine, sourceConfig())
	require.NoError(t, err)

	rows, err := exec.Changes(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "3", rows[0]["id"])
	assert.Equal(t, "1", rows[1]["id"])
	assert.Equal(t, "2", rows[2]["id"])
	assert.Equal(t, "c1", engine.lastCursor)
}

func TestExecutor_DropsRowsWithoutIdentity(t *testing.T) {
	engine := &fakeEngine{bootstrap: []Row{
		{"id": "a"},
		{"name": "no id"},
		{"id": nil},
		{"id": 0},
	}}
	exec, err := NewExecutor(engine, sourceConfig())
	require.NoError(t, err)

	rows, err := exec.Bootstrap(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["id"])
	assert.Equal(t, 0, rows[1]["id"])
}

func TestExecutor_ChangesFailOnMissingIdentity(t *testing.T) {
	engine := &fakeEngine{changes: []Row{
		{"id": "a"},
		{"name": "no id"},
		{"id": "c"},
	}}
	exec, err := NewExecutor(engine, sourceConfig())
	require.NoError(t, err)

	rows, err := exec.Changes(context.Background(), "c1")
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, ErrQuery)
	assert.ErrorIs(t, err, ErrMissingIdentity)

	engine.changes = []Row{{"id": "a"}, {"id": nil}}
	_, err = exec.Changes(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrMissingIdentity)
}

func TestExecutor_WrapsErrQuery(t *testing.T) {
	boom := errors.New("syntax error")
	exec, err := NewExecutor(&fakeEngine{err: boom}, sourceConfig())
	require.NoError(t, err)

	_, err = exec.Bootstrap(context.Background())
	assert.ErrorIs(t, err, ErrQuery)
	assert.ErrorIs(t, err, boom)

	_, err = exec.Changes(context.Background(), "c")
	assert.ErrorIs(t, err, ErrQuery)

	_, err = exec.Position(context.Background())
	assert.ErrorIs(t, err, ErrQuery)
}

func TestExecutor_DoesNotDoubleWrap(t *testing.T) {
	inner := errors.Join(ErrQuery, errors.New("kusto returned 400"))
	exec, err := NewExecutor(&fakeEngine{err: inner}, sourceConfig())
	require.NoError(t, err)

	_, err = exec.Position(context.Background())
	assert.Equal(t, inner, err)
}

func TestExecutor_Timeout(t *testing.T) {
	c := sourceConfig()
	c.QueryTimeoutMS = 20
	exec, err := NewExecutor(&fakeEngine{block: true}, c)
	require.NoError(t, err)

	start := time.Now()
	_, err = exec.Changes(context.Background(), "c")
	assert.ErrorIs(t, err, ErrQuery)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestExecutor_ExcludesProperties(t *testing.T) {
	c := sourceConfig()
	c.ExcludeProperties = []string{"_*", "i*"}
	engine := &fakeEngine{changes: []Row{{"id": "1", "_ingested": "x", "internal": true, "name": "n"}}}
	exec, err := NewExecutor(engine, c)
	require.NoError(t, err)

	rows, err := exec.Changes(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, Row{"id": "1", "name": "n"}, rows[0])
}

func TestNewExecutor_Validation(t *testing.T) {
	_, err := NewExecutor(nil, sourceConfig())
	assert.Error(t, err)

	c := sourceConfig()
	c.IdentityField = ""
	_, err = NewExecutor(&fakeEngine{}, c)
	assert.Error(t, err)

	c = sourceConfig()
	c.ExcludeProperties = []string{"[invalid"}
	_, err = NewExecutor(&fakeEngine{}, c)
	assert.Error(t, err)
}

func TestExecutor_Close(t *testing.T) {
	engine := &fakeEngine{}
	exec, err := NewExecutor(engine, sourceConfig())
	require.NoError(t, err)

	require.NoError(t, exec.Close())
	assert.True(t, engine.closed)
}

func TestRegistry(t *testing.T) {
	RegisterEngine("fake", func(c *cfg.SourceConfiguration) (Engine, error) {
		return &fakeEngine{position: c.Table}, nil
	})

	engine, err := NewEngine(&cfg.SourceConfiguration{Engine: "fake", Table: "T"})
	require.NoError(t, err)
	pos, err := engine.Position(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T", pos)
	assert.Contains(t, Engines(), "fake")

	_, err = NewEngine(&cfg.SourceConfiguration{Engine: "unknown"})
	assert.Error(t, err)
}
