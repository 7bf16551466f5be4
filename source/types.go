package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/maxpert/reactivator/cfg"
)

// ErrQuery is returned when a bootstrap, incremental or position query
// fails, times out or returns a malformed result.
var ErrQuery = errors.New("source query failed")

// ErrMissingIdentity is returned when an incremental row has no identity value
var ErrMissingIdentity = errors.New("row has no identity value")

// Row is one result row keyed by column name
type Row map[string]any

// Engine runs the three queries the reactivator needs against a data source.
// Implementations return rows in the order the source produced them.
type Engine interface {
	// Bootstrap runs the snapshot query, unfiltered by any cursor
	Bootstrap(ctx context.Context) ([]Row, error)
	// Changes returns rows whose position is strictly after cursor
	Changes(ctx context.Context, cursor string) ([]Row, error)
	// Position returns the source's current position as an opaque string
	Position(ctx context.Context) (string, error)
	// Close releases connections held by the engine
	Close() error
}

// EngineFactory creates an Engine from the source configuration
type EngineFactory func(*cfg.SourceConfiguration) (Engine, error)

var (
	engineFactories = make(map[string]EngineFactory)
	factoryMu       sync.RWMutex
)

// RegisterEngine registers an engine factory for a name
func RegisterEngine(name string, factory EngineFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	engineFactories[name] = factory
}

// NewEngine creates the engine named by c.Engine
func NewEngine(c *cfg.SourceConfiguration) (Engine, error) {
	factoryMu.RLock()
	factory, exists := engineFactories[c.Engine]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown source engine: %s (registered: %v)", c.Engine, Engines())
	}

	return factory(c)
}

// Engines lists the registered engine names
func Engines() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	names := make([]string, 0, len(engineFactories))
	for name := range engineFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
