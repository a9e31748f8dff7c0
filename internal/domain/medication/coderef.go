package medication

import "strings"

type refKind int

const (
	refSingle refKind = iota
	refRecord
	refResolved
	refMany
)

// CodeRef is a reference to one or more codes to attach to an entity: a
// bare code, a code carrying a raw attribute record, an already resolved
// entity, or a list of references.
type CodeRef struct {
	kind   refKind
	code   string
	name   string
	attrs  Attributes
	entity Entity
	refs   []CodeRef
}

// Single references a code to be resolved through its adapter.
func Single(code string) CodeRef {
	return CodeRef{kind: refSingle, code: code}
}

// Named references a code and the display name the caller knows it by.
func Named(code, name string) CodeRef {
	return CodeRef{kind: refSingle, code: code, name: name}
}

// Record references a code whose attributes are already known, for example
// a crosswalk result. No adapter call is made for it.
func Record(code string, attrs Attributes) CodeRef {
	return CodeRef{kind: refRecord, code: code, attrs: attrs}
}

// Resolved references an entity that already exists.
func Resolved(e Entity) CodeRef {
	return CodeRef{kind: refResolved, entity: e}
}

// Many groups references.
func Many(refs ...CodeRef) CodeRef {
	return CodeRef{kind: refMany, refs: refs}
}

// Codes is shorthand for Many over Single references.
func Codes(codes ...string) CodeRef {
	refs := make([]CodeRef, 0, len(codes))
	for _, c := range codes {
		refs = append(refs, Single(c))
	}
	return Many(refs...)
}

func (r CodeRef) String() string {
	switch r.kind {
	case refResolved:
		if r.entity == nil {
			return "<nil>"
		}
		return r.entity.Code()
	case refMany:
		parts := make([]string, 0, len(r.refs))
		for _, ref := range r.refs {
			parts = append(parts, ref.String())
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return r.code
}
