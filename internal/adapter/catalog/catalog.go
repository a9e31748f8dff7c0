// Package catalog serves code-system data from a YAML file. It backs the
// offline terminology mode and the fixtures used in tests.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/crosswalk"
	"github.com/ehr/medxwalk/internal/domain/medication"
)

// Provider names as they appear at the top level of the file.
const (
	ProviderRxNorm       = "rxnorm"
	ProviderNDC          = "ndc"
	ProviderNDCSecondary = "ndc_secondary"
	ProviderUMLS         = "umls"
)

// SystemOf returns the code system a provider section serves.
func SystemOf(provider string) (codesystem.System, bool) {
	switch provider {
	case ProviderRxNorm:
		return codesystem.Normalized, true
	case ProviderNDC, ProviderNDCSecondary:
		return codesystem.NDC, true
	case ProviderUMLS:
		return codesystem.Universal, true
	}
	return "", false
}

// Providers lists the provider sections in a fixed order.
func Providers() []string {
	return []string{ProviderRxNorm, ProviderNDC, ProviderNDCSecondary, ProviderUMLS}
}

// Entry is one code known to a provider.
type Entry struct {
	Code        string              `yaml:"code"`
	Name        string              `yaml:"name"`
	Status      string              `yaml:"status"`
	TermType    string              `yaml:"tty"`
	Ingredients map[string][]string `yaml:"ingredients"`
	Remaps      []string            `yaml:"remaps"`
	History     *medication.History `yaml:"history"`
	Linked      map[string][]string `yaml:"linked"`
}

// Mapping is one universal crosswalk result set.
type Mapping struct {
	Source string           `yaml:"source"`
	Target string           `yaml:"target"`
	Code   string           `yaml:"code"`
	Terms  []crosswalk.Term `yaml:"terms"`
}

type file struct {
	RxNorm       []Entry   `yaml:"rxnorm"`
	NDC          []Entry   `yaml:"ndc"`
	NDCSecondary []Entry   `yaml:"ndc_secondary"`
	UMLS         []Entry   `yaml:"umls"`
	Crosswalks   []Mapping `yaml:"crosswalks"`
}

type mappingKey struct {
	source, target, code string
}

// Catalog is an immutable in-memory terminology.
type Catalog struct {
	providers  map[string]*Provider
	crosswalks map[mappingKey][]crosswalk.Term
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML. Duplicate codes within a provider are
// rejected.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{
		providers:  make(map[string]*Provider),
		crosswalks: make(map[mappingKey][]crosswalk.Term),
	}
	for name, entries := range map[string][]Entry{
		ProviderRxNorm:       f.RxNorm,
		ProviderNDC:          f.NDC,
		ProviderNDCSecondary: f.NDCSecondary,
		ProviderUMLS:         f.UMLS,
	} {
		p, err := newProvider(name, entries)
		if err != nil {
			return nil, err
		}
		c.providers[name] = p
	}
	for _, m := range f.Crosswalks {
		k := mappingKey{source: upper(m.Source), target: upper(m.Target), code: m.Code}
		for _, t := range m.Terms {
			if t.System == "" {
				t.System = k.target
			}
			c.crosswalks[k] = append(c.crosswalks[k], t)
		}
	}
	return c, nil
}

// Provider returns the named provider. Unknown names get an empty provider
// that knows no codes.
func (c *Catalog) Provider(name string) *Provider {
	if p, ok := c.providers[name]; ok {
		return p
	}
	return &Provider{name: name, entries: map[string]*Entry{}, reverse: map[string]map[string][]string{}}
}

// Mappings returns every crosswalk result set, ordered by source, target
// and code.
func (c *Catalog) Mappings() []Mapping {
	out := make([]Mapping, 0, len(c.crosswalks))
	for k, terms := range c.crosswalks {
		out = append(out, Mapping{Source: k.source, Target: k.target, Code: k.code, Terms: terms})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Code < b.Code
	})
	return out
}

// Translate implements crosswalk.Translator.
func (c *Catalog) Translate(ctx context.Context, code, source, target string) ([]crosswalk.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := c.crosswalks[mappingKey{source: upper(source), target: upper(target), code: code}]
	return append([]crosswalk.Term(nil), terms...), nil
}

// Provider answers adapter calls from one section of the catalog.
type Provider struct {
	name    string
	entries map[string]*Entry
	// reverse indexes Linked by source system, then by the linked code.
	reverse map[string]map[string][]string
}

func newProvider(name string, entries []Entry) (*Provider, error) {
	p := &Provider{
		name:    name,
		entries: make(map[string]*Entry, len(entries)),
		reverse: make(map[string]map[string][]string),
	}
	for i := range entries {
		e := &entries[i]
		e.Code = strings.TrimSpace(e.Code)
		if e.Code == "" {
			return nil, fmt.Errorf("catalog %s: entry %d has no code", name, i)
		}
		if _, dup := p.entries[e.Code]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate code %q", name, e.Code)
		}
		p.entries[e.Code] = e
		for system, codes := range e.Linked {
			system = crosswalk.Key(system)
			if p.reverse[system] == nil {
				p.reverse[system] = make(map[string][]string)
			}
			for _, c := range codes {
				p.reverse[system][c] = append(p.reverse[system][c], e.Code)
			}
		}
	}
	return p, nil
}

func (p *Provider) Name() string { return p.name }
func (p *Provider) Len() int     { return len(p.entries) }

// Entries returns the provider's entries sorted by code.
func (p *Provider) Entries() []Entry {
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (p *Provider) lookup(ctx context.Context, code string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.entries[code], nil
}

func (p *Provider) Validate(ctx context.Context, code string) (bool, error) {
	e, err := p.lookup(ctx, code)
	return e != nil, err
}

func (p *Provider) FetchBase(ctx context.Context, code string) (*medication.Attributes, error) {
	e, err := p.lookup(ctx, code)
	if e == nil || err != nil {
		return nil, err
	}
	return &medication.Attributes{Valid: true, Name: e.Name, Status: e.Status, TermType: e.TermType}, nil
}

func (p *Provider) FetchIngredients(ctx context.Context, code string) (map[string][]string, error) {
	e, err := p.lookup(ctx, code)
	if e == nil || err != nil {
		return nil, err
	}
	return e.Ingredients, nil
}

func (p *Provider) FetchRemaps(ctx context.Context, code string) ([]string, error) {
	e, err := p.lookup(ctx, code)
	if e == nil || err != nil {
		return nil, err
	}
	return e.Remaps, nil
}

func (p *Provider) FetchHistory(ctx context.Context, code string) (*medication.History, error) {
	e, err := p.lookup(ctx, code)
	if e == nil || err != nil {
		return nil, err
	}
	return e.History, nil
}

func (p *Provider) FetchLinked(ctx context.Context, code, target string) ([]string, error) {
	e, err := p.lookup(ctx, code)
	if e == nil || err != nil {
		return nil, err
	}
	return e.Linked[crosswalk.Key(target)], nil
}

// FetchLinkedFrom returns the provider's codes whose links to source
// include code.
func (p *Provider) FetchLinkedFrom(ctx context.Context, code, source string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]string(nil), p.reverse[crosswalk.Key(source)][code]...), nil
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
