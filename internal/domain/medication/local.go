package medication

import (
	"context"
	"errors"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Local is an institution-local medication. Its code is the local id.
// A generic local medication is registered under GENERIC.
type Local struct {
	core
	source  string
	generic bool
}

func newLocal(svc *Service, id, source string, generic bool) *Local {
	l := &Local{source: source, generic: generic}
	system := codesystem.Local
	if generic {
		system = codesystem.Generic
	}
	l.init(svc, l, system, id)
	l.validity = Valid
	return l
}

func (l *Local) Source() string { return l.source }
func (l *Local) Generic() bool  { return l.generic }

// Ingredients rolls up the ingredients of every normalized concept linked
// to the medication. Each concept caches its own result, so repeated calls
// do not repeat adapter calls.
func (l *Local) Ingredients(ctx context.Context) ([]Entity, error) {
	var out []Entity
	for _, e := range l.LinkedCodes(codesystem.Normalized) {
		ings, err := e.Ingredients(ctx)
		if errors.Is(err, ErrInvalidCode) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ings...)
	}
	return dedupe(out), nil
}

func (l *Local) View() View {
	v := l.view()
	v.Source = l.source
	return v
}
