package cdc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/maxpert/reactivator/source"
)

// fakeLog is an append-only table whose position is the number of rows
// ingested so far.
type fakeLog struct {
	mu          sync.Mutex
	rows        []source.Row
	changesErr  error
	positionErr error
	queries     []string
	probes      int
}

func (f *fakeLog) append(rows ...source.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
}

func (f *fakeLog) Bootstrap(ctx context.Context) ([]source.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.changesErr != nil {
		return nil, f.changesErr
	}
	return append([]source.Row(nil), f.rows...), nil
}

func (f *fakeLog) Changes(ctx context.Context, cursor string) ([]source.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, cursor)
	if f.changesErr != nil {
		return nil, f.changesErr
	}

	after, err := strconv.Atoi(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: bad cursor %q", source.ErrQuery, cursor)
	}
	if after >= len(f.rows) {
		return nil, nil
	}
	return append([]source.Row(nil), f.rows[after:]...), nil
}

func (f *fakeLog) Position(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	if f.positionErr != nil {
		return "", f.positionErr
	}
	return strconv.Itoa(len(f.rows)), nil
}

func (f *fakeLog) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func (f *fakeLog) queriedCursors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type published struct {
	topic string
	env   Envelope
}

// recordingPublisher fails the failOn-th publish (1-based) while failOn > 0
type recordingPublisher struct {
	mu      sync.Mutex
	events  []published
	calls   int
	failOn  int
	panicOn int
}

var errBus = errors.New("bus unavailable")

func (p *recordingPublisher) Publish(ctx context.Context, topic string, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if p.panicOn > 0 && p.calls == p.panicOn {
		panic("sink exploded")
	}
	if p.failOn > 0 && p.calls == p.failOn {
		return errBus
	}
	p.events = append(p.events, published{topic: topic, env: env})
	return nil
}

func (p *recordingPublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.events))
	for _, e := range p.events {
		ids = append(ids, e.env.Payload.After.ID)
	}
	return ids
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
	p.calls = 0
	p.failOn = 0
	p.panicOn = 0
}

// flakyStore fails every call while down is set
type flakyStore struct {
	mu     sync.Mutex
	values map[string]string
	down   bool
	sets   int
}

var errStoreDown = errors.New("connection refused")

func newFlakyStore() *flakyStore {
	return &flakyStore{values: make(map[string]string)}
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", errStoreDown
	}
	return s.values[key], nil
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errStoreDown
	}
	s.sets++
	s.values[key] = value
	return nil
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *flakyStore) value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func row(id string, kv ...any) source.Row {
	r := source.Row{"id": id}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = kv[i+1]
	}
	return r
}
