package medication

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/registry"
)

// Service owns the entity registry and is the only place entities are
// constructed.
type Service struct {
	reg      *registry.Registry[Entity]
	adapters Adapters
	logger   zerolog.Logger
}

func NewService(reg *registry.Registry[Entity], adapters Adapters, logger zerolog.Logger) *Service {
	if reg == nil {
		reg = registry.New[Entity]()
	}
	if adapters == nil {
		adapters = Adapters{}
	}
	return &Service{
		reg:      reg,
		adapters: adapters,
		logger:   logger.With().Str("component", "medication").Logger(),
	}
}

func (s *Service) Registry() *registry.Registry[Entity] { return s.reg }

// Get returns the entity for (system, code), constructing and validating
// it on first reference. A failed validation call leaves the new entity
// unresolved; it is still registered and retried on next access.
func (s *Service) Get(ctx context.Context, system codesystem.System, code string) (Entity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &IdentityError{System: system, Err: ErrMissingCode}
	}
	if !system.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, system)
	}

	e, created := s.reg.GetOrCreate(system, code, func() Entity {
		e := s.newEntity(system, code)
		if _, err := e.Valid(ctx); err != nil {
			s.logger.Warn().Str("system", string(system)).Str("code", code).Err(err).Msg("entity registered unresolved")
		}
		return e
	})
	if created {
		s.logger.Debug().Str("system", string(system)).Str("code", code).Str("validity", e.Validity().String()).Msg("entity created")
	}
	return e, nil
}

// Lookup returns a registered entity without creating it.
func (s *Service) Lookup(system codesystem.System, code string) (Entity, bool) {
	return s.reg.Get(system, strings.TrimSpace(code))
}

// Adopt registers (system, code) with attributes the caller already holds,
// skipping the adapter round trip. When the entity exists and is still
// unresolved the attributes settle it; otherwise only the name is merged.
func (s *Service) Adopt(system codesystem.System, code string, attrs Attributes) (Entity, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &IdentityError{System: system, Err: ErrMissingCode}
	}
	if !system.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, system)
	}

	e, created := s.reg.GetOrCreate(system, code, func() Entity {
		e := s.newEntity(system, code)
		e.base().apply(&attrs)
		return e
	})
	if !created {
		c := e.base()
		c.resolveMu.Lock()
		if c.Validity() == Unresolved {
			c.apply(&attrs)
		} else {
			c.SetName(attrs.Name)
		}
		c.resolveMu.Unlock()
	}
	return e, nil
}

// Local returns the local medication with id, creating it when absent.
// created reports whether this call registered it.
func (s *Service) Local(id, source string) (*Local, bool, error) {
	return s.local(id, source, false)
}

// Generic is Local for medications registered under GENERIC.
func (s *Service) Generic(id, source string) (*Local, bool, error) {
	return s.local(id, source, true)
}

func (s *Service) local(id, source string, generic bool) (*Local, bool, error) {
	id = strings.TrimSpace(id)
	system := codesystem.Local
	if generic {
		system = codesystem.Generic
	}
	if id == "" {
		return nil, false, &IdentityError{System: system, Err: ErrMissingCode}
	}
	e, created := s.reg.GetOrCreate(system, id, func() Entity {
		return newLocal(s, id, source, generic)
	})
	l, ok := e.(*Local)
	if !ok {
		return nil, false, fmt.Errorf("%w: %s %q is %T", ErrSystemMismatch, system, id, e)
	}
	return l, created, nil
}

func (s *Service) newEntity(system codesystem.System, code string) Entity {
	switch system {
	case codesystem.Normalized:
		return newConcept(s, code)
	case codesystem.NDC:
		return newProduct(s, code)
	case codesystem.Universal:
		return newUniversal(s, code)
	case codesystem.Generic:
		return newLocal(s, code, "", true)
	default:
		return newLocal(s, code, "", false)
	}
}

// Resolve turns ref into registered entities of system. References that
// cannot be resolved are reported as errors and skipped.
func (s *Service) Resolve(ctx context.Context, system codesystem.System, ref CodeRef) ([]Entity, []error) {
	switch ref.kind {
	case refMany:
		var out []Entity
		var errs []error
		for _, r := range ref.refs {
			ents, rerrs := s.Resolve(ctx, system, r)
			out = append(out, ents...)
			errs = append(errs, rerrs...)
		}
		return out, errs

	case refResolved:
		if ref.entity == nil {
			return nil, []error{&IdentityError{System: system, Err: ErrNilEntity}}
		}
		if ref.entity.System() != system {
			return nil, []error{&IdentityError{System: system, Ref: ref.entity.Code(), Err: ErrSystemMismatch}}
		}
		return []Entity{ref.entity}, nil

	case refRecord:
		e, err := s.Adopt(system, ref.code, ref.attrs)
		if err != nil {
			return nil, []error{err}
		}
		return []Entity{e}, nil

	default:
		e, err := s.Get(ctx, system, ref.code)
		if err != nil {
			return nil, []error{err}
		}
		if ref.name != "" {
			e.SetName(ref.name)
		}
		return []Entity{e}, nil
	}
}

// Concept returns the normalized concept for code.
func (s *Service) Concept(ctx context.Context, code string) (*Concept, error) {
	e, err := s.Get(ctx, codesystem.Normalized, code)
	if err != nil {
		return nil, err
	}
	return e.(*Concept), nil
}

// Stats summarizes registry contents per code system.
func (s *Service) Stats() map[codesystem.System]int {
	return s.reg.Counts()
}
