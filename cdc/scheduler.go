package cdc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/reactivator/source"
	"github.com/maxpert/reactivator/telemetry"
	"github.com/oklog/ulid"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the delay between the end of one tick and the start of
// the next
const DefaultInterval = 10 * time.Second

// ErrTickPanic wraps a panic recovered inside a tick
var ErrTickPanic = errors.New("tick panicked")

// ChangeSource runs the incremental and position queries
type ChangeSource interface {
	Changes(ctx context.Context, cursor string) ([]source.Row, error)
	Position(ctx context.Context) (string, error)
}

// EventPublisher emits one envelope to the bus
type EventPublisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

// SchedulerConfig configures the polling scheduler
type SchedulerConfig struct {
	Source    ChangeSource
	Cursors   *CursorManager
	Encoder   *Encoder
	Publisher EventPublisher
	Topic     string
	Interval  time.Duration
}

// TickResult describes one poll cycle
type TickResult struct {
	ID         string        // ULID for log correlation
	Cursor     string        // Cursor the incremental query started after
	NextCursor string        // Position committed at the end of the tick
	Rows       int           // Rows returned by the incremental query
	Published  int           // Envelopes accepted by the bus
	Duration   time.Duration // Wall time of the whole tick
	Err        error         // Nil when the cursor was committed
}

// OK returns true if the tick committed its cursor
func (r TickResult) OK() bool {
	return r.Err == nil
}

// Scheduler runs ticks one after another with a fixed delay between them.
// It starts at most once per process.
type Scheduler struct {
	config SchedulerConfig

	started  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	tickMu   sync.Mutex // Ticks never overlap
	failures atomic.Int64
	last     atomic.Pointer[TickResult]
}

// NewScheduler creates an idle scheduler
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("change source is required")
	}
	if config.Cursors == nil {
		return nil, fmt.Errorf("cursor manager is required")
	}
	if config.Encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}
	if config.Publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Scheduler{
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the polling loop. It returns false if the scheduler was
// already started. The loop runs until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) bool {
	if !s.started.CompareAndSwap(false, true) {
		return false
	}

	log.Info().
		Str("topic", s.config.Topic).
		Dur("interval", s.config.Interval).
		Msg("Starting polling scheduler")
	telemetry.PollingActive.Set(1)

	go s.loop(ctx)
	return true
}

// Started returns true once Start has succeeded
func (s *Scheduler) Started() bool {
	return s.started.Load()
}

// Stop ends the polling loop and waits for a tick in flight to finish
func (s *Scheduler) Stop() {
	if !s.started.Load() {
		return
	}

	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping polling scheduler")
		close(s.stopCh)
	})
	<-s.doneCh
	telemetry.PollingActive.Set(0)
}

// LastTick returns the most recent tick result, nil before the first tick
func (s *Scheduler) LastTick() *TickResult {
	return s.last.Load()
}

// ConsecutiveFailures returns the number of failed ticks since the last
// successful one
func (s *Scheduler) ConsecutiveFailures() int64 {
	return s.failures.Load()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	for s.sleep(ctx, s.config.Interval) {
		s.Tick(ctx)
	}
}

// sleep waits for d. Returns false if the scheduler was stopped.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-s.stopCh:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Tick runs one poll cycle: load cursor, query changes, probe the new
// position, publish every row in order, commit. The cursor is committed
// only if every step succeeded.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	res := TickResult{ID: newTickID(start)}

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("%w: %v", ErrTickPanic, r)
			}
		}()
		res.Err = s.run(ctx, &res)
	}()

	res.Duration = time.Since(start)
	s.record(&res)
	return res
}

func (s *Scheduler) run(ctx context.Context, res *TickResult) error {
	cursor, err := s.config.Cursors.Load(ctx)
	if err != nil {
		return err
	}
	res.Cursor = cursor

	rows, err := s.config.Source.Changes(ctx, cursor)
	if err != nil {
		return err
	}
	res.Rows = len(rows)

	next, err := s.config.Source.Position(ctx)
	if err != nil {
		return fmt.Errorf("probe position: %w", err)
	}

	for i, row := range rows {
		env := s.config.Encoder.Encode(row, s.config.Encoder.Now().Nanos())
		if err := s.config.Publisher.Publish(ctx, s.config.Topic, env); err != nil {
			return fmt.Errorf("row %d of %d (%s): %w", i+1, len(rows), env.Key(), err)
		}
		res.Published++
		telemetry.EventsPublishedTotal.Inc()
	}

	if err := s.config.Cursors.Commit(ctx, next); err != nil {
		return err
	}
	res.NextCursor = next
	return nil
}

func (s *Scheduler) record(res *TickResult) {
	telemetry.TickDurationSeconds.Observe(res.Duration.Seconds())
	s.last.Store(res)

	if res.Err != nil {
		failures := s.failures.Add(1)
		telemetry.TicksTotal.With("failed").Inc()
		telemetry.ConsecutiveTickFailures.Set(float64(failures))
		log.Error().
			Err(res.Err).
			Str("tick_id", res.ID).
			Str("cursor", res.Cursor).
			Int("rows", res.Rows).
			Int("published", res.Published).
			Int64("consecutive_failures", failures).
			Msg("Poll cycle failed, cursor not advanced")
		return
	}

	s.failures.Store(0)
	telemetry.TicksTotal.With("success").Inc()
	telemetry.ConsecutiveTickFailures.Set(0)
	telemetry.LastSuccessfulTick.SetToCurrentTime()

	ev := log.Debug()
	if res.Rows > 0 {
		ev = log.Info()
	}
	ev.Str("tick_id", res.ID).
		Str("cursor", res.Cursor).
		Str("next_cursor", res.NextCursor).
		Int("rows", res.Rows).
		Dur("took", res.Duration).
		Msg("Poll cycle completed")
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newTickID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
