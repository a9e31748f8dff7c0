package registry

import (
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Key identifies one entity.
type Key struct {
	System codesystem.System
	Code   string
}

func (k Key) String() string { return string(k.System) + "|" + k.Code }

// Registry is the deduplicating store of entities, one MASTER map per code
// system. Insertion is additive: keys are never replaced or removed.
type Registry[E any] struct {
	mu      sync.RWMutex
	masters map[codesystem.System]map[string]E
	scopes  map[string]*Scope[E]
	group   singleflight.Group
}

// New creates an empty registry.
func New[E any]() *Registry[E] {
	return &Registry[E]{
		masters: make(map[codesystem.System]map[string]E),
		scopes:  make(map[string]*Scope[E]),
	}
}

// Get returns the entity for (system, code) if it has been registered.
func (r *Registry[E]) Get(system codesystem.System, code string) (E, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.masters[system][code]
	return e, ok
}

// Contains reports whether (system, code) has been registered.
func (r *Registry[E]) Contains(system codesystem.System, code string) bool {
	_, ok := r.Get(system, code)
	return ok
}

// GetOrCreate returns the registered entity for (system, code), invoking
// factory to construct and insert it when absent. Concurrent callers for
// the same key share one factory invocation; created is true only for the
// caller whose factory result was inserted.
func (r *Registry[E]) GetOrCreate(system codesystem.System, code string, factory func() E) (e E, created bool) {
	if e, ok := r.Get(system, code); ok {
		return e, false
	}

	var ran bool
	key := Key{System: system, Code: code}.String()
	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		ran = true
		// Re-check: another flight for this key may have completed between
		// the read above and entering Do.
		if e, ok := r.Get(system, code); ok {
			return result[E]{entity: e}, nil
		}
		e := factory()
		stored, inserted := r.Add(system, code, e)
		return result[E]{entity: stored, created: inserted}, nil
	})
	res := v.(result[E])
	return res.entity, ran && res.created
}

type result[E any] struct {
	entity  E
	created bool
}

// Add inserts e under (system, code) unless the key already exists, in
// which case the existing entity is returned and inserted is false.
func (r *Registry[E]) Add(system codesystem.System, code string, e E) (stored E, inserted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.masters[system]
	if !ok {
		m = make(map[string]E)
		r.masters[system] = m
	}
	if existing, ok := m[code]; ok {
		return existing, false
	}
	m[code] = e
	return e, true
}

// AllOf returns every entity of system ordered by code.
func (r *Registry[E]) AllOf(system codesystem.System) []E {
	r.mu.RLock()
	m := r.masters[system]
	codes := make([]string, 0, len(m))
	for c := range m {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	out := make([]E, 0, len(codes))
	for _, c := range codes {
		out = append(out, m[c])
	}
	r.mu.RUnlock()
	return out
}

// Systems returns the code systems that have at least one entity.
func (r *Registry[E]) Systems() []codesystem.System {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]codesystem.System, 0, len(r.masters))
	for s := range r.masters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of entities registered for system.
func (r *Registry[E]) Len(system codesystem.System) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.masters[system])
}

// Counts returns the entity count per code system.
func (r *Registry[E]) Counts() map[codesystem.System]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[codesystem.System]int, len(r.masters))
	for s, m := range r.masters {
		out[s] = len(m)
	}
	return out
}

// Scope returns the named sub-registry, creating it on first use.
func (r *Registry[E]) Scope(name string) *Scope[E] {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scopes[name]
	if !ok {
		s = &Scope[E]{name: name, entries: make(map[Key]E)}
		r.scopes[name] = s
	}
	return s
}

// Scopes lists the names of all sub-registries.
func (r *Registry[E]) Scopes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.scopes))
	for n := range r.scopes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
