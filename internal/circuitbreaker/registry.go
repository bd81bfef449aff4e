package circuitbreaker

import (
	"sort"
	"sync"
)

type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	defaults  Settings
	overrides map[string]Settings
	opts      []Option
}

// NewRegistry creates an empty registry. Zero fields of defaults fall back to
// DefaultSettings. Circuits for names present in overrides get those settings
// layered over defaults; every other circuit uses defaults. opts are applied
// to every circuit the registry creates.
func NewRegistry(defaults Settings, overrides map[string]Settings, opts ...Option) *Registry {
	copied := make(map[string]Settings, len(overrides))
	for name, s := range overrides {
		copied[name] = s
	}

	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		defaults:  DefaultSettings().Merge(defaults),
		overrides: copied,
		opts:      opts,
	}
}

// SettingsFor resolves the settings a circuit named name is created with.
func (r *Registry) SettingsFor(name string) Settings {
	if o, ok := r.overrides[name]; ok {
		return r.defaults.Merge(o)
	}
	return r.defaults
}

// GetBreaker returns the circuit for name, creating it on first use.
// created is true only for the caller that inserted it.
func (r *Registry) GetBreaker(name string) (cb *CircuitBreaker, created bool) {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb, false
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb, false
	}

	cb = NewCircuitBreaker(name, r.SettingsFor(name), r.opts...)
	r.breakers[name] = cb
	return cb, true
}

func (r *Registry) Lookup(name string) (*CircuitBreaker, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	cb, ok := r.breakers[name]
	return cb, ok
}

func (r *Registry) Remove(name string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.breakers[name]; !ok {
		return false
	}
	delete(r.breakers, name)
	return true
}

// Breakers returns every registered circuit ordered by name.
func (r *Registry) Breakers() []*CircuitBreaker {
	r.mutex.RLock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mutex.RUnlock()

	sort.Slice(breakers, func(i, j int) bool {
		return breakers[i].Name() < breakers[j].Name()
	})
	return breakers
}
