package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
)

// Registry implements outbound.ProviderRegistryPort.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.PaymentMethod]outbound.ProviderAdapterPort
}

// NewRegistry creates a registry holding the given adapters.
func NewRegistry(adapters ...outbound.ProviderAdapterPort) *Registry {
	r := &Registry{adapters: make(map[model.PaymentMethod]outbound.ProviderAdapterPort)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its rail.
func (r *Registry) Register(adapter outbound.ProviderAdapterPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Rail()] = adapter
}

func (r *Registry) Get(rail model.PaymentMethod) (outbound.ProviderAdapterPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[rail]
	if !ok {
		return nil, fmt.Errorf("no adapter configured for rail %q", rail)
	}
	return adapter, nil
}

func (r *Registry) Rails() []model.PaymentMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rails := make([]model.PaymentMethod, 0, len(r.adapters))
	for rail := range r.adapters {
		rails = append(rails, rail)
	}
	sort.Slice(rails, func(i, j int) bool { return rails[i] < rails[j] })
	return rails
}

// Compile-time check
var _ outbound.ProviderRegistryPort = (*Registry)(nil)
