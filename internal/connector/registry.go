package connector

import (
	"fmt"
	"sort"
	"sync"

	"NewsRadar/internal/ports"
)

// Registry keeps a mapping from source type tags to connector implementations.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]ports.Connector
}

// NewRegistry builds a registry holding the given connectors.
func NewRegistry(connectors ...ports.Connector) *Registry {
	r := &Registry{connectors: map[string]ports.Connector{}}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces a connector implementation.
func (r *Registry) Register(c ports.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connectors == nil {
		r.connectors = map[string]ports.Connector{}
	}
	r.connectors[c.Type()] = c
}

// Resolve returns a connector by type tag or an error if it is absent.
func (r *Registry) Resolve(sourceType string) (ports.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.connectors[sourceType]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("connector %s is not registered", sourceType)
}

// Types lists the registered type tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
