package registry

import (
	"sort"
	"sync"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Scope is a named view over a subset of registry entities, such as the
// entities touched by one input file. It never owns an entity: the MASTER
// registry remains the only place entities are created.
type Scope[E any] struct {
	name    string
	mu      sync.RWMutex
	entries map[Key]E
	order   []Key
}

func (s *Scope[E]) Name() string { return s.name }

// Add records e under (system, code). It returns false when the key was
// already present in this scope.
func (s *Scope[E]) Add(system codesystem.System, code string, e E) bool {
	k := Key{System: system, Code: code}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[k]; ok {
		return false
	}
	s.entries[k] = e
	s.order = append(s.order, k)
	return true
}

func (s *Scope[E]) Get(system codesystem.System, code string) (E, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[Key{System: system, Code: code}]
	return e, ok
}

// AllOf returns the scope's entities of system in insertion order.
func (s *Scope[E]) AllOf(system codesystem.System) []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []E
	for _, k := range s.order {
		if k.System == system {
			out = append(out, s.entries[k])
		}
	}
	return out
}

// Systems returns the code systems present in the scope.
func (s *Scope[E]) Systems() []codesystem.System {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[codesystem.System]bool)
	var out []codesystem.System
	for _, k := range s.order {
		if !seen[k.System] {
			seen[k.System] = true
			out = append(out, k.System)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Scope[E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
