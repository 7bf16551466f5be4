package cdc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/maxpert/reactivator/state"
	"github.com/maxpert/reactivator/telemetry"
	"github.com/rs/zerolog/log"
)

var (
	// ErrEmptyPosition is returned when the source reports no position to
	// fall back to
	ErrEmptyPosition = errors.New("source returned an empty position")

	// ErrEmptyCursor is returned when committing an empty cursor
	ErrEmptyCursor = errors.New("cursor must not be empty")
)

// CursorStore is the part of state.Store the cursor manager uses
type CursorStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// PositionSource reports the source's current position
type PositionSource interface {
	Position(ctx context.Context) (string, error)
}

// CursorManager owns the cursor. It is the only writer of the cursor key.
type CursorManager struct {
	store     CursorStore
	key       string
	positions PositionSource

	mu       sync.Mutex
	current  string
	fallback string
}

// NewCursorManager creates a manager persisting the cursor under key
func NewCursorManager(store CursorStore, key string, positions PositionSource) *CursorManager {
	return &CursorManager{
		store:     store,
		key:       key,
		positions: positions,
	}
}

// Load returns the cursor the next incremental query starts after.
//
// A stored cursor always wins. With nothing stored the source position is
// probed once; that value is used from then on but only persisted by a
// successful Commit.
func (m *CursorManager) Load(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.store.Get(ctx, m.key)
	if err != nil {
		return "", storeErr("load", err)
	}
	if stored != "" {
		m.current = stored
		return stored, nil
	}

	if m.fallback != "" {
		m.current = m.fallback
		return m.fallback, nil
	}

	pos, err := m.positions.Position(ctx)
	if err != nil {
		return "", fmt.Errorf("probe position: %w", err)
	}
	if pos == "" {
		return "", ErrEmptyPosition
	}

	telemetry.CursorFallbackProbesTotal.Inc()
	log.Info().
		Str("key", m.key).
		Str("cursor", pos).
		Msg("No stored cursor, starting from current source position")

	m.fallback = pos
	m.current = pos
	return pos, nil
}

// Commit persists cursor as the position the next tick starts after
func (m *CursorManager) Commit(ctx context.Context, cursor string) error {
	if cursor == "" {
		return ErrEmptyCursor
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.Set(ctx, m.key, cursor); err != nil {
		return storeErr("commit", err)
	}

	m.current = cursor
	m.fallback = ""
	telemetry.CursorCommitsTotal.Inc()
	return nil
}

// Current returns the last loaded or committed cursor, empty before the
// first Load
func (m *CursorManager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func storeErr(op string, err error) error {
	if errors.Is(err, state.ErrUnavailable) {
		return fmt.Errorf("%s cursor: %w", op, err)
	}
	return fmt.Errorf("%s cursor: %w: %w", op, state.ErrUnavailable, err)
}
