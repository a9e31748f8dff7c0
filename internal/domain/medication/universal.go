package medication

import (
	"context"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Universal is a UMLS concept.
type Universal struct {
	core
}

func newUniversal(svc *Service, code string) *Universal {
	u := &Universal{}
	u.init(svc, u, codesystem.Universal, code)
	return u
}

// Ingredients is not defined for universal concepts.
func (u *Universal) Ingredients(context.Context) ([]Entity, error) {
	return nil, nil
}

func (u *Universal) View() View { return u.view() }
