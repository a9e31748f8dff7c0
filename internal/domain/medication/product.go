package medication

import (
	"context"
	"errors"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Product is a National Drug Code.
type Product struct {
	core
}

func newProduct(svc *Service, code string) *Product {
	p := &Product{}
	p.init(svc, p, codesystem.NDC, code)
	return p
}

// Normalized returns the 11 digit form of the code.
func (p *Product) Normalized() string { return codesystem.NormalizeNDC(p.code) }

// Ingredients resolves the product's normalized concepts and rolls up
// their ingredients.
func (p *Product) Ingredients(ctx context.Context) ([]Entity, error) {
	concepts, err := p.Linked(ctx, codesystem.Normalized)
	if err != nil {
		return nil, err
	}
	var out []Entity
	for _, c := range concepts {
		ings, err := c.Ingredients(ctx)
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

func (p *Product) View() View {
	v := p.view()
	fv := true
	v.FHIRValid = &fv
	return v
}
