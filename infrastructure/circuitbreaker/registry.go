package circuitbreaker

import (
	"sort"
	"sync"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/clock"
)

// Registry hands out one Breaker per operation class, e.g. "llm-extract" or
// "fetch:zillow", so an outage in one class never trips another.
type Registry struct {
	mu        sync.Mutex
	defaults  Config
	overrides map[string]Config
	breakers  map[string]*Breaker
	clock     clock.Clock
	onChange  func(name string, from, to State)
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithOverride sets a dedicated config for one operation class.
func WithOverride(name string, cfg Config) RegistryOption {
	return func(r *Registry) { r.overrides[name] = cfg }
}

// WithRegistryClock injects the clock handed to every breaker.
func WithRegistryClock(c clock.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// WithTransitionHook is called after any breaker in the registry changes state.
func WithTransitionHook(fn func(name string, from, to State)) RegistryOption {
	return func(r *Registry) { r.onChange = fn }
}

// NewRegistry creates an empty registry. Breakers are built lazily by Get.
func NewRegistry(defaults Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		defaults:  defaults,
		overrides: make(map[string]Config),
		breakers:  make(map[string]*Breaker),
		clock:     clock.Real(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	cfg, ok := r.overrides[name]
	if !ok {
		cfg = r.defaults
	}
	if r.onChange != nil {
		hook, prev := r.onChange, cfg.OnStateChange
		cfg.OnStateChange = func(from, to State) {
			if prev != nil {
				prev(from, to)
			}
			hook(name, from, to)
		}
	}

	b := New(cfg, WithClock(r.clock), WithName(name))
	r.breakers[name] = b
	return b
}

// States returns stats for every breaker created so far, sorted by name.
func (r *Registry) States() []Stats {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.GetStats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset closes the named breaker. It reports false if the breaker does not exist.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()
	if ok {
		b.Reset()
	}
	return ok
}
