package adapter

import (
	"context"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
)

// ReverseLinker is implemented by adapters that can answer a link query
// from the other side: which of their own codes are linked to a code of
// another system.
type ReverseLinker interface {
	FetchLinkedFrom(ctx context.Context, code, source string) ([]string, error)
}

// Reversed presents an adapter's reverse lookup as a forward link, so a
// provider keyed by its own codes can still answer crosswalks into its
// system.
type Reversed struct {
	next   medication.Adapter
	source string
}

// Reverse returns a crosswalk linker that maps codes of source onto the
// codes of a.
func Reverse(a medication.Adapter, source codesystem.System) *Reversed {
	return &Reversed{next: a, source: string(source)}
}

func (r *Reversed) FetchLinked(ctx context.Context, code, _ string) ([]string, error) {
	return linkedFrom(ctx, r.next, code, r.source)
}

// linkedFrom reports no links for adapters without a reverse index.
func linkedFrom(ctx context.Context, a medication.Adapter, code, source string) ([]string, error) {
	rl, ok := a.(ReverseLinker)
	if !ok {
		return nil, nil
	}
	return rl.FetchLinkedFrom(ctx, code, source)
}
