package publisher

import (
	"fmt"
	"sync"

	"github.com/maxpert/reactivator/cfg"
)

// SinkFactory is a function that creates a Sink from a configuration
type SinkFactory func(*cfg.PubSubConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	factoryMu     sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// NewSink creates a sink based on the configuration
func NewSink(config *cfg.PubSubConfiguration) (Sink, error) {
	factoryMu.RLock()
	factory, exists := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}

	return factory(config)
}
