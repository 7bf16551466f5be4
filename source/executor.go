package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maxpert/reactivator/cfg"
	"github.com/maxpert/reactivator/telemetry"
	"github.com/rs/zerolog/log"
)

// Executor runs engine queries with a deadline and normalizes their results.
// Every failure it returns wraps ErrQuery.
type Executor struct {
	engine   Engine
	identity string
	filter   *PropertyFilter
	timeout  time.Duration
}

// NewExecutor wraps engine using the identity field, exclusions and timeout
// from c
func NewExecutor(engine Engine, c *cfg.SourceConfiguration) (*Executor, error) {
	if engine == nil {
		return nil, fmt.Errorf("source engine is required")
	}
	if c.IdentityField == "" {
		return nil, fmt.Errorf("identity field is required")
	}

	filter, err := NewPropertyFilter(c.ExcludeProperties, c.IdentityField)
	if err != nil {
		return nil, err
	}

	return &Executor{
		engine:   engine,
		identity: c.IdentityField,
		filter:   filter,
		timeout:  time.Duration(c.QueryTimeoutMS) * time.Millisecond,
	}, nil
}

// IdentityField returns the column that identifies a row
func (e *Executor) IdentityField() string {
	return e.identity
}

// Bootstrap runs the snapshot query
func (e *Executor) Bootstrap(ctx context.Context) ([]Row, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	rows, err := e.engine.Bootstrap(ctx)
	if err != nil {
		return nil, wrap("bootstrap", err)
	}
	return e.normalize("bootstrap", rows), nil
}

// Changes runs the incremental query for rows after cursor. A row without an
// identity value fails the whole query so the cursor is never moved past it.
func (e *Executor) Changes(ctx context.Context, cursor string) ([]Row, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	rows, err := e.engine.Changes(ctx, cursor)
	if err != nil {
		return nil, wrap("incremental", err)
	}

	for i, row := range rows {
		if !e.hasIdentity(row) {
			telemetry.RowsSkippedTotal.Inc()
			return nil, wrap("incremental", fmt.Errorf("%w: row %d has no %q value", ErrMissingIdentity, i, e.identity))
		}
		rows[i] = e.filter.Apply(row)
	}
	return rows, nil
}

// Position probes the source's current position
func (e *Executor) Position(ctx context.Context) (string, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	pos, err := e.engine.Position(ctx)
	if err != nil {
		return "", wrap("position", err)
	}
	return pos, nil
}

// Close closes the underlying engine
func (e *Executor) Close() error {
	return e.engine.Close()
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.timeout)
}

func (e *Executor) hasIdentity(row Row) bool {
	v, ok := row[e.identity]
	return ok && v != nil
}

// normalize drops rows without an identity value and applies exclusions.
// Result order is preserved.
func (e *Executor) normalize(query string, rows []Row) []Row {
	out := rows[:0]
	for i, row := range rows {
		if !e.hasIdentity(row) {
			log.Warn().
				Str("query", query).
				Str("identity_field", e.identity).
				Int("row", i).
				Msg("Dropping row without identity value")
			telemetry.RowsSkippedTotal.Inc()
			continue
		}
		out = append(out, e.filter.Apply(row))
	}
	return out
}

func wrap(query string, err error) error {
	if errors.Is(err, ErrQuery) {
		return err
	}
	return fmt.Errorf("%w: %s query: %w", ErrQuery, query, err)
}
