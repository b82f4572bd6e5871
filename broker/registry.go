package broker

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a Broker from the given Config.
type Factory func(cfg Config) (Broker, error)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a broker available under name. Plugins call this from
// init(). Registering a name twice or a nil factory panics.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if factory == nil {
		panic("pubmux: Register factory is nil for " + name)
	}
	if _, dup := factories[name]; dup {
		panic("pubmux: Register called twice for broker " + name)
	}
	factories[name] = factory
}

// Create builds the broker registered as name.
func Create(name string, cfg Config) (Broker, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pubmux: unknown broker %q (registered: %v)", name, Names())
	}
	b, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("pubmux: create %s broker: %w", name, err)
	}
	return b, nil
}

// Names returns the registered broker names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
