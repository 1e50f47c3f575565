package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh strategy instance for one run.
type Factory func(config map[string]any) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register installs a factory under a type name. Re-registering swaps the
// factory, which is how hot reload is expressed in a compiled binary.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// New instantiates a fresh strategy of the named type. The engine calls this
// once per run.
func New(name string, config map[string]any) (Strategy, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy type: %s", name)
	}
	return factory(config)
}

// List returns the registered type names, sorted.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func floatParam(config map[string]any, key string, def float64) float64 {
	if config == nil {
		return def
	}
	switch v := config[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}
