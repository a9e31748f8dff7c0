package loader

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
	"github.com/ehr/medxwalk/internal/domain/registry"
)

// Batch is one loaded input: its local medications, the code systems its
// rows referenced and the final counters.
type Batch struct {
	ID        uuid.UUID
	Name      string
	StartedAt time.Time

	scope *registry.Scope[medication.Entity]

	mu      sync.Mutex
	systems map[codesystem.System]bool
	stats   Stats
}

func newBatch(name string, reg *registry.Registry[medication.Entity]) *Batch {
	id := uuid.New()
	return &Batch{
		ID:        id,
		Name:      name,
		StartedAt: time.Now().UTC(),
		scope:     reg.Scope(name + "#" + id.String()),
		systems:   make(map[codesystem.System]bool),
	}
}

func (b *Batch) addSystem(s codesystem.System) {
	b.mu.Lock()
	b.systems[s] = true
	b.mu.Unlock()
}

// Systems returns the code types seen in the batch, sorted.
func (b *Batch) Systems() []codesystem.System {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]codesystem.System, 0, len(b.systems))
	for s := range b.systems {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Locals returns the batch's local medications in first-seen order.
func (b *Batch) Locals() []medication.Entity {
	return b.scope.AllOf(codesystem.Local)
}

// RecordCount is the number of distinct local ids in the batch. Linked
// entities share the scope and are not counted.
func (b *Batch) RecordCount() int {
	return len(b.scope.AllOf(codesystem.Local))
}

func (b *Batch) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Batch) setStats(s Stats) {
	b.mu.Lock()
	b.stats = s
	b.mu.Unlock()
}

// Summary is the serializable report of a batch.
type Summary struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	StartedAt  time.Time           `json:"started_at"`
	Records    int                 `json:"records"`
	Duplicates int                 `json:"duplicates"`
	Errors     int                 `json:"errors"`
	Systems    []codesystem.System `json:"systems"`
	Failures   []RowError          `json:"failures,omitempty"`
}

func (b *Batch) Summary() Summary {
	st := b.Stats()
	return Summary{
		ID:         b.ID.String(),
		Name:       b.Name,
		StartedAt:  b.StartedAt,
		Records:    st.Records,
		Duplicates: st.Duplicates,
		Errors:     st.Errors,
		Systems:    b.Systems(),
		Failures:   st.Failures,
	}
}
