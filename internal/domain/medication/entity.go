package medication

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Validity is the identity state of an entity. It starts Unresolved and
// moves to Valid or Invalid exactly once.
type Validity int

const (
	Unresolved Validity = iota
	Valid
	Invalid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	}
	return "unresolved"
}

// Entity is one code within one code system.
type Entity interface {
	Code() string
	System() codesystem.System
	// Validity returns the cached identity state without any adapter call.
	Validity() Validity
	// Valid resolves identity on first use and reports whether the code
	// is valid.
	Valid(ctx context.Context) (bool, error)
	Name() string
	Names() []string
	SetName(name string)
	Status(ctx context.Context) (string, error)
	Ingredients(ctx context.Context) ([]Entity, error)
	// Linked returns the entities of target associated with this one,
	// asking the adapter the first time.
	Linked(ctx context.Context, target codesystem.System) ([]Entity, error)
	// LinkedCodes returns the cached associations without any adapter call.
	LinkedCodes(target codesystem.System) []Entity
	AddLinked(ctx context.Context, system codesystem.System, ref CodeRef) ([]Entity, []error)
	View() View

	base() *core
}

// core holds the identity and link state shared by every variant.
type core struct {
	svc    *Service
	self   Entity
	code   string
	system codesystem.System

	mu          sync.RWMutex
	validity    Validity
	names       []string
	status      string
	termType    codesystem.TermType
	links       map[codesystem.System]*linkSet
	linkChecked map[codesystem.System]bool

	resolveMu sync.Mutex
	linkMu    sync.Mutex
}

func (c *core) init(svc *Service, self Entity, system codesystem.System, code string) {
	c.svc = svc
	c.self = self
	c.system = system
	c.code = code
	c.links = make(map[codesystem.System]*linkSet)
	c.linkChecked = make(map[codesystem.System]bool)
}

func (c *core) base() *core               { return c }
func (c *core) Code() string              { return c.code }
func (c *core) System() codesystem.System { return c.system }
func (c *core) adapter() Adapter          { return c.svc.adapters[c.system] }

func (c *core) requireAdapter() (Adapter, error) {
	if a := c.adapter(); a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoAdapter, c.system)
}

func (c *core) Validity() Validity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validity
}

func (c *core) Valid(ctx context.Context) (bool, error) {
	if v := c.Validity(); v != Unresolved {
		return v == Valid, nil
	}
	return c.resolve(ctx)
}

// resolve performs the single validate+fetch round trip. An adapter
// failure leaves the entity unresolved.
func (c *core) resolve(ctx context.Context) (bool, error) {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()

	if v := c.Validity(); v != Unresolved {
		return v == Valid, nil
	}

	a := c.adapter()
	if a == nil {
		c.mu.Lock()
		c.validity = Valid
		c.mu.Unlock()
		return true, nil
	}

	attrs, err := a.FetchBase(ctx, c.code)
	if err != nil {
		c.svc.logger.Warn().Str("system", string(c.system)).Str("code", c.code).Err(err).Msg("code validation failed")
		return false, &AdapterError{System: c.system, Op: "fetch base", Code: c.code, Err: err}
	}
	c.apply(attrs)
	return c.Validity() == Valid, nil
}

// apply fixes validity from a base record and fills in the attributes it
// carries. A nil or invalid record marks the entity Invalid.
func (c *core) apply(attrs *Attributes) {
	if attrs == nil || !attrs.Valid {
		c.mu.Lock()
		c.validity = Invalid
		c.mu.Unlock()
		return
	}
	c.mu.Lock()
	c.validity = Valid
	if attrs.Status != "" {
		c.status = codesystem.NormalizeStatus(attrs.Status)
	}
	c.mu.Unlock()
	c.SetName(attrs.Name)
	if attrs.TermType != "" {
		c.setTermType(attrs.TermType)
	}
}

func (c *core) setTermType(tty string) {
	t, ok := codesystem.ParseTermType(tty)
	if !ok {
		c.svc.logger.Error().Str("code", c.code).Str("tty", tty).Msg("unsupported term type")
		return
	}
	c.mu.Lock()
	c.termType = t
	c.mu.Unlock()
}

func (c *core) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.names) == 0 {
		return ""
	}
	return c.names[0]
}

func (c *core) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.names...)
}

// SetName records name. A name that differs from the ones already known is
// appended rather than replacing them.
func (c *core) SetName(name string) {
	if name == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.names {
		if n == name {
			return
		}
	}
	c.names = append(c.names, name)
}

func (c *core) cachedStatus() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Status returns the cached status, fetching it once when the base record
// did not carry one.
func (c *core) Status(ctx context.Context) (string, error) {
	ok, err := c.Valid(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		c.svc.logger.Warn().Str("system", string(c.system)).Str("code", c.code).Msg("status requested for invalid code")
		return "", ErrInvalidCode
	}
	if s := c.cachedStatus(); s != "" {
		return s, nil
	}
	a := c.adapter()
	if a == nil {
		return "", nil
	}

	attrs, err := a.FetchBase(ctx, c.code)
	if err != nil {
		return "", &AdapterError{System: c.system, Op: "fetch status", Code: c.code, Err: err}
	}
	if attrs == nil || attrs.Status == "" {
		return "", nil
	}
	c.mu.Lock()
	c.status = codesystem.NormalizeStatus(attrs.Status)
	s := c.status
	c.mu.Unlock()
	return s, nil
}

func (c *core) LinkedCodes(target codesystem.System) []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ls, ok := c.links[target]; ok {
		return ls.list()
	}
	return nil
}

// linkedSystems returns the systems this entity has associations in.
func (c *core) linkedSystems() []codesystem.System {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []codesystem.System
	for _, s := range codesystem.All() {
		if ls, ok := c.links[s]; ok && ls.len() > 0 {
			out = append(out, s)
		}
	}
	return out
}

// link stores e under target. It reports false when a code was already
// linked.
func (c *core) link(target codesystem.System, e Entity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls, ok := c.links[target]
	if !ok {
		ls = newLinkSet()
		c.links[target] = ls
	}
	return ls.add(e)
}

func (c *core) Linked(ctx context.Context, target codesystem.System) ([]Entity, error) {
	c.linkMu.Lock()
	defer c.linkMu.Unlock()

	c.mu.RLock()
	checked := c.linkChecked[target]
	c.mu.RUnlock()
	a := c.adapter()
	if checked || a == nil {
		return c.LinkedCodes(target), nil
	}

	ok, err := c.Valid(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}

	codes, err := a.FetchLinked(ctx, c.code, string(target))
	if err != nil {
		return nil, &AdapterError{System: c.system, Op: "fetch linked " + string(target), Code: c.code, Err: err}
	}
	for _, code := range codes {
		e, err := c.svc.Get(ctx, target, code)
		if err != nil {
			c.svc.logger.Warn().Str("code", c.code).Str("linked", code).Err(err).Msg("skipping linked code")
			continue
		}
		c.link(target, e)
	}

	c.mu.Lock()
	c.linkChecked[target] = true
	c.mu.Unlock()
	return c.LinkedCodes(target), nil
}

// AddLinked resolves ref into entities of system and attaches the usable
// ones. Invalid codes and unresolvable references are returned as errors
// and skipped.
func (c *core) AddLinked(ctx context.Context, system codesystem.System, ref CodeRef) ([]Entity, []error) {
	resolved, errs := c.svc.Resolve(ctx, system, ref)
	var added []Entity
	for _, e := range resolved {
		if e == c.self {
			continue
		}
		ok, err := e.Valid(ctx)
		if err != nil {
			// Unresolved codes stay attached; the next access retries.
			errs = append(errs, err)
		} else if !ok {
			errs = append(errs, &IdentityError{System: system, Ref: e.Code(), Err: ErrInvalidCode})
			continue
		}
		c.link(system, e)
		added = append(added, e)
	}
	return added, errs
}

type linkSet struct {
	order  []Entity
	byCode map[string]struct{}
}

func newLinkSet() *linkSet {
	return &linkSet{byCode: make(map[string]struct{})}
}

func (s *linkSet) add(e Entity) bool {
	if _, ok := s.byCode[e.Code()]; ok {
		return false
	}
	s.byCode[e.Code()] = struct{}{}
	s.order = append(s.order, e)
	return true
}

func (s *linkSet) list() []Entity { return append([]Entity(nil), s.order...) }
func (s *linkSet) len() int       { return len(s.order) }

// dedupe drops repeated codes, keeping first occurrence order.
func dedupe(in []Entity) []Entity {
	seen := make(map[string]struct{}, len(in))
	out := make([]Entity, 0, len(in))
	for _, e := range in {
		k := string(e.System()) + "|" + e.Code()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}
