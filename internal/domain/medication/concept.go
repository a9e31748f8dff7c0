package medication

import (
	"context"
	"sort"
	"sync"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Concept is a normalized drug concept (RxNorm).
type Concept struct {
	core

	ingMu          sync.Mutex
	ingChecked     bool
	hasIngredients bool
	ingredients    []Entity

	remapMu      sync.Mutex
	remapChecked bool
	remaps       []Entity

	histMu      sync.Mutex
	histChecked bool
	history     *History
}

func newConcept(svc *Service, code string) *Concept {
	c := &Concept{}
	c.init(svc, c, codesystem.Normalized, code)
	return c
}

func (c *Concept) TermType() codesystem.TermType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.termType
}

// IsIngredient reports whether the concept is itself ingredient level.
func (c *Concept) IsIngredient() bool { return c.TermType().IsIngredient() }

// FHIRValid reports whether the concept may be emitted as a FHIR coding.
func (c *Concept) FHIRValid() bool { return c.TermType().FHIRValid() }

// HasIngredients reports the outcome of ingredient resolution. checked is
// false until Ingredients has succeeded once.
func (c *Concept) HasIngredients() (has, checked bool) {
	c.ingMu.Lock()
	defer c.ingMu.Unlock()
	return c.hasIngredients, c.ingChecked
}

// Ingredients resolves the ingredient-level concepts underlying c. The
// result is cached after the first success.
func (c *Concept) Ingredients(ctx context.Context) ([]Entity, error) {
	c.ingMu.Lock()
	defer c.ingMu.Unlock()

	if c.ingChecked {
		return append([]Entity(nil), c.ingredients...), nil
	}

	ok, err := c.Valid(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	if c.IsIngredient() {
		c.setIngredients([]Entity{c})
		return []Entity{c}, nil
	}

	status, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	var codes []string
	if codesystem.HasHistory(status) {
		h, err := c.History(ctx)
		if err != nil {
			return nil, err
		}
		// The lineage record can carry the only term type a retired
		// concept has.
		if c.IsIngredient() {
			c.setIngredients([]Entity{c})
			return []Entity{c}, nil
		}
		if h == nil || len(h.Ingredients) == 0 {
			c.svc.logger.Warn().Str("code", c.code).Str("status", status).
				Msg("historical concept has no lineage record; treating as having no ingredients")
		} else {
			codes = h.Ingredients
		}
	} else {
		a, err := c.requireAdapter()
		if err != nil {
			return nil, err
		}
		byRelation, err := a.FetchIngredients(ctx, c.code)
		if err != nil {
			return nil, &AdapterError{System: c.system, Op: "fetch ingredients", Code: c.code, Err: err}
		}
		relations := make([]string, 0, len(byRelation))
		for rel := range byRelation {
			relations = append(relations, rel)
		}
		sort.Strings(relations)
		for _, rel := range relations {
			codes = append(codes, byRelation[rel]...)
		}
	}

	var ings []Entity
	for _, code := range codes {
		e, err := c.svc.Get(ctx, codesystem.Normalized, code)
		if err != nil {
			c.svc.logger.Warn().Str("code", c.code).Str("ingredient", code).Err(err).Msg("skipping ingredient")
			continue
		}
		ings = append(ings, e)
	}
	ings = dedupe(ings)
	c.setIngredients(ings)
	return append([]Entity(nil), ings...), nil
}

// setIngredients must be called with ingMu held.
func (c *Concept) setIngredients(ings []Entity) {
	c.ingredients = ings
	c.hasIngredients = len(ings) > 0
	c.ingChecked = true
}

// Remaps returns the concepts that replaced c. An empty result is a valid
// outcome: most concepts have never been remapped.
func (c *Concept) Remaps(ctx context.Context) ([]Entity, error) {
	c.remapMu.Lock()
	defer c.remapMu.Unlock()

	if c.remapChecked {
		return append([]Entity(nil), c.remaps...), nil
	}

	status, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}

	var remaps []Entity
	if status == "" || codesystem.HasRemaps(status) {
		a, err := c.requireAdapter()
		if err != nil {
			return nil, err
		}
		codes, err := a.FetchRemaps(ctx, c.code)
		if err != nil {
			return nil, &AdapterError{System: c.system, Op: "fetch remaps", Code: c.code, Err: err}
		}
		for _, code := range codes {
			e, err := c.svc.Get(ctx, codesystem.Normalized, code)
			if err != nil {
				c.svc.logger.Warn().Str("code", c.code).Str("remap", code).Err(err).Msg("skipping remap")
				continue
			}
			remaps = append(remaps, e)
		}
	}
	c.remaps = dedupe(remaps)
	c.remapChecked = true
	return append([]Entity(nil), c.remaps...), nil
}

// History returns the historical record of a retired, alien or unknown
// concept and folds its name and term type into c. Live concepts return
// nil without an adapter call.
func (c *Concept) History(ctx context.Context) (*History, error) {
	c.histMu.Lock()
	defer c.histMu.Unlock()

	if c.histChecked {
		return c.history, nil
	}

	status, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !codesystem.HasHistory(status) {
		c.histChecked = true
		return nil, nil
	}

	a, err := c.requireAdapter()
	if err != nil {
		return nil, err
	}
	h, err := a.FetchHistory(ctx, c.code)
	if err != nil {
		return nil, &AdapterError{System: c.system, Op: "fetch history", Code: c.code, Err: err}
	}
	if h != nil {
		c.SetName(h.Name)
		if h.TermType != "" {
			c.setTermType(h.TermType)
		}
	}
	c.history = h
	c.histChecked = true
	return h, nil
}

// ActiveCodes follows remaps until it reaches live concepts. A concept
// with no successors is its own active code.
func (c *Concept) ActiveCodes(ctx context.Context) ([]Entity, error) {
	return c.activeCodes(ctx, map[string]bool{})
}

func (c *Concept) activeCodes(ctx context.Context, seen map[string]bool) ([]Entity, error) {
	if seen[c.code] {
		return nil, nil
	}
	seen[c.code] = true

	status, err := c.Status(ctx)
	if err != nil {
		return nil, err
	}
	if codesystem.IsLive(status) {
		return []Entity{c}, nil
	}
	remaps, err := c.Remaps(ctx)
	if err != nil {
		return nil, err
	}
	if len(remaps) == 0 {
		return []Entity{c}, nil
	}
	var out []Entity
	for _, r := range remaps {
		rc, ok := r.(*Concept)
		if !ok {
			continue
		}
		active, err := rc.activeCodes(ctx, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, active...)
	}
	return dedupe(out), nil
}

func (c *Concept) View() View {
	v := c.view()
	v.TermType = string(c.TermType())
	fv := c.FHIRValid()
	v.FHIRValid = &fv
	if has, checked := c.HasIngredients(); checked {
		v.HasIngredients = &has
	}
	return v
}
