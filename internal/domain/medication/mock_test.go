package medication

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

type mockAdapter struct {
	mu          sync.Mutex
	base        map[string]*Attributes
	ingredients map[string]map[string][]string
	remaps      map[string][]string
	history     map[string]*History
	linked      map[string]map[string][]string
	fail        map[string]error
	calls       map[string]int
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		base:        make(map[string]*Attributes),
		ingredients: make(map[string]map[string][]string),
		remaps:      make(map[string][]string),
		history:     make(map[string]*History),
		linked:      make(map[string]map[string][]string),
		fail:        make(map[string]error),
		calls:       make(map[string]int),
	}
}

func newMockRxNormAdapter() *mockAdapter {
	m := newMockAdapter()
	m.base["161"] = &Attributes{Valid: true, Name: "acetaminophen", Status: "Active", TermType: "IN"}
	m.base["5640"] = &Attributes{Valid: true, Name: "ibuprofen", Status: "Active", TermType: "IN"}
	m.base["313782"] = &Attributes{Valid: true, Name: "acetaminophen 325 MG Oral Tablet", Status: "Active", TermType: "SCD"}
	m.ingredients["313782"] = map[string][]string{"IN": {"161"}}
	m.base["702318"] = &Attributes{Valid: true, Name: "acetaminophen / ibuprofen", Status: "Active", TermType: "SCD"}
	m.ingredients["702318"] = map[string][]string{"IN": {"161", "5640"}, "MIN": {"161"}}
	m.base["105048"] = &Attributes{Valid: true, Name: "Tylenol 325 MG", Status: "Retired", TermType: "SBD"}
	m.history["105048"] = &History{Name: "Tylenol 325 MG Oral Tablet", TermType: "SBD", Ingredients: []string{"161"}}
	m.base["999"] = &Attributes{Valid: true, Name: "orphan", Status: "Retired", TermType: "SCD"}
	m.base["1000"] = &Attributes{Valid: true, Name: "old acetaminophen tablet", Status: "Remapped", TermType: "SCD"}
	m.remaps["1000"] = []string{"313782"}
	m.base["0"] = &Attributes{Valid: false}
	m.linked["313782"] = map[string][]string{"NDC": {"0004-0038-22"}}
	return m
}

func newMockNDCAdapter() *mockAdapter {
	m := newMockAdapter()
	m.base["0004-0038-22"] = &Attributes{Valid: true, Name: "Tylenol", Status: "Active"}
	m.linked["0004-0038-22"] = map[string][]string{"RXNORM": {"313782"}}
	return m
}

func (m *mockAdapter) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[op]++
	return m.fail[op]
}

func (m *mockAdapter) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockAdapter) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockAdapter) setFail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

func (m *mockAdapter) Validate(_ context.Context, code string) (bool, error) {
	if err := m.record("validate"); err != nil {
		return false, err
	}
	a, ok := m.base[code]
	return ok && a.Valid, nil
}

func (m *mockAdapter) FetchBase(_ context.Context, code string) (*Attributes, error) {
	if err := m.record("fetch_base"); err != nil {
		return nil, err
	}
	a, ok := m.base[code]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAdapter) FetchIngredients(_ context.Context, code string) (map[string][]string, error) {
	if err := m.record("fetch_ingredients"); err != nil {
		return nil, err
	}
	return m.ingredients[code], nil
}

func (m *mockAdapter) FetchRemaps(_ context.Context, code string) ([]string, error) {
	if err := m.record("fetch_remaps"); err != nil {
		return nil, err
	}
	return m.remaps[code], nil
}

func (m *mockAdapter) FetchHistory(_ context.Context, code string) (*History, error) {
	if err := m.record("fetch_history"); err != nil {
		return nil, err
	}
	return m.history[code], nil
}

func (m *mockAdapter) FetchLinked(_ context.Context, code, target string) ([]string, error) {
	if err := m.record("fetch_linked"); err != nil {
		return nil, err
	}
	return m.linked[code][target], nil
}

func newTestService() (*Service, *mockAdapter, *mockAdapter) {
	rx := newMockRxNormAdapter()
	ndc := newMockNDCAdapter()
	svc := NewService(nil, Adapters{
		codesystem.Normalized: rx,
		codesystem.NDC:        ndc,
	}, zerolog.Nop())
	return svc, rx, ndc
}
