package browser

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// EngineSettings is the per-engine configuration applied at discovery.
type EngineSettings struct {
	Disabled       bool
	ExecutablePath string
	Args           []string
	Prefs          map[string]any
}

// Registry holds the known engine kinds and probes which of them are
// installed. It never launches a process.
type Registry struct {
	mu       sync.RWMutex
	prober   Prober
	kinds    map[string]Kind
	settings map[string]EngineSettings
}

// NewRegistry creates a registry that probes with p. When no kinds are
// given, DefaultKinds is used.
func NewRegistry(p Prober, kinds ...Kind) *Registry {
	if len(kinds) == 0 {
		kinds = DefaultKinds()
	}
	r := &Registry{
		prober:   p,
		kinds:    make(map[string]Kind, len(kinds)),
		settings: make(map[string]EngineSettings),
	}
	for _, k := range kinds {
		r.kinds[k.Name] = k
	}
	return r
}

// Register adds an engine kind, replacing any kind with the same name.
func (r *Registry) Register(k Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[k.Name] = k
}

// Configure sets the settings used when discovering the named engine.
func (r *Registry) Configure(name string, s EngineSettings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[Canonical(name)] = s
}

// Names returns the registered engine names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.kinds))
}

// Discover probes every registered engine kind. It never fails as a whole:
// missing or disabled engines are reported with Available=false and a
// reason.
func (r *Registry) Discover(ctx context.Context) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	descs := make([]EngineDescriptor, 0, len(r.kinds))
	for name, k := range r.kinds {
		s := r.settings[name]
		d := EngineDescriptor{
			Name:         name,
			Family:       k.Family,
			Channel:      k.Channel,
			Capabilities: familyCapabilities(k.Family),
			Args:         slices.Clone(s.Args),
			Prefs:        maps.Clone(s.Prefs),
		}

		switch {
		case ctx.Err() != nil:
			d.Reason = fmt.Sprintf("discovery cancelled: %v", ctx.Err())
		case s.Disabled:
			d.Reason = "disabled in configuration"
		default:
			res := r.prober.probe(k, s.ExecutablePath)
			d.ExecutablePath = res.path
			d.Source = res.source
			d.Available = res.found()
			d.Reason = res.reason
		}
		descs = append(descs, d)
	}
	return NewSnapshot(descs...)
}

// Snapshot is the immutable result of one discovery. It is safe for
// concurrent use.
type Snapshot struct {
	engines map[string]EngineDescriptor
	order   []string
}

// NewSnapshot builds a snapshot from descriptors, keyed by name.
func NewSnapshot(descs ...EngineDescriptor) *Snapshot {
	s := &Snapshot{engines: make(map[string]EngineDescriptor, len(descs))}
	for _, d := range descs {
		s.engines[d.Name] = d
	}
	s.order = slices.Sorted(maps.Keys(s.engines))
	return s
}

// Lookup returns the descriptor for name.
func (s *Snapshot) Lookup(name string) (EngineDescriptor, bool) {
	d, ok := s.engines[Canonical(name)]
	return d, ok
}

// Resolve returns the descriptor for name if the engine is available, or an
// error wrapping ErrEngineUnavailable.
func (s *Snapshot) Resolve(name string) (EngineDescriptor, error) {
	d, ok := s.Lookup(name)
	if !ok {
		d = EngineDescriptor{Name: Canonical(name), Reason: "unknown engine"}
		return d, fmt.Errorf("%w: unknown engine %q", ErrEngineUnavailable, name)
	}
	if !d.Available {
		return d, fmt.Errorf("%w: %s: %s", ErrEngineUnavailable, d.Name, d.Reason)
	}
	return d, nil
}

// All returns every descriptor sorted by name, for a stable listing.
func (s *Snapshot) All() []EngineDescriptor {
	out := make([]EngineDescriptor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.engines[name])
	}
	return out
}

// Available returns the descriptors of available engines, sorted by name.
func (s *Snapshot) Available() []EngineDescriptor {
	var out []EngineDescriptor
	for _, name := range s.order {
		if d := s.engines[name]; d.Available {
			out = append(out, d)
		}
	}
	return out
}

// AvailableNames returns the names of available engines, sorted.
func (s *Snapshot) AvailableNames() []string {
	var names []string
	for _, d := range s.Available() {
		names = append(names, d.Name)
	}
	return names
}
