package breaker

import (
	"sync"

	"k8s.io/apimachinery/pkg/util/clock"
)

// Registry hands out one breaker per protected resource name.  Resources not
// present in the overrides map get the default settings.
type Registry struct {
	defaults  Settings
	overrides map[string]Settings
	clock     clock.PassiveClock

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewRegistry(defaults Settings, overrides map[string]Settings) *Registry {
	return NewRegistryWithClock(defaults, overrides, clock.RealClock{})
}

func NewRegistryWithClock(defaults Settings, overrides map[string]Settings, clk clock.PassiveClock) *Registry {
	return &Registry{
		defaults:  defaults.withDefaults(),
		overrides: overrides,
		clock:     clk,
		breakers:  map[string]*CircuitBreaker{},
	}
}

func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	settings := r.defaults
	if override, ok := r.overrides[name]; ok {
		settings = override
	}
	cb := New(name, settings, r.clock)
	r.breakers[name] = cb
	return cb
}
