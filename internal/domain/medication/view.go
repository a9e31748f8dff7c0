package medication

import "github.com/ehr/medxwalk/internal/domain/codesystem"

// View is the serializable snapshot of an entity. Building it never calls
// an adapter.
type View struct {
	Code           string                         `json:"code"`
	System         codesystem.System              `json:"system"`
	Validity       string                         `json:"validity"`
	Name           string                         `json:"name,omitempty"`
	Names          []string                       `json:"names,omitempty"`
	Status         string                         `json:"status,omitempty"`
	TermType       string                         `json:"tty,omitempty"`
	FHIRSystem     string                         `json:"fhir_system,omitempty"`
	FHIRValid      *bool                          `json:"fhir_valid,omitempty"`
	HasIngredients *bool                          `json:"has_ingredients,omitempty"`
	Source         string                         `json:"source,omitempty"`
	Linked         map[codesystem.System][]string `json:"linked,omitempty"`
}

func (c *core) view() View {
	c.mu.RLock()
	v := View{
		Code:       c.code,
		System:     c.system,
		Validity:   c.validity.String(),
		Status:     c.status,
		FHIRSystem: c.system.FHIRSystem(),
	}
	if len(c.names) > 0 {
		v.Name = c.names[0]
	}
	if len(c.names) > 1 {
		v.Names = append([]string(nil), c.names...)
	}
	c.mu.RUnlock()

	for _, s := range c.linkedSystems() {
		if v.Linked == nil {
			v.Linked = make(map[codesystem.System][]string)
		}
		for _, e := range c.LinkedCodes(s) {
			v.Linked[s] = append(v.Linked[s], e.Code())
		}
	}
	return v
}

// Views maps entities to their views.
func Views(entities []Entity) []View {
	out := make([]View, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.View())
	}
	return out
}
