package pgstore

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/ehr/medxwalk/internal/adapter"
	"github.com/ehr/medxwalk/internal/adapter/catalog"
	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
	"github.com/ehr/medxwalk/internal/platform/db"
)

var (
	_ medication.Adapter    = (*Source)(nil)
	_ adapter.ReverseLinker = (*Source)(nil)
)

type fakeRows struct {
	rows [][]string
	pos  int
	err  error
}

func (f *fakeRows) Next() bool {
	if f.pos >= len(f.rows) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRows) Scan(dest ...interface{}) error {
	r := f.rows[f.pos-1]
	for i := range dest {
		*dest[i].(*string) = r[i]
	}
	return nil
}

func (f *fakeRows) Err() error { return f.err }

func TestGroupByQualifier(t *testing.T) {
	rows := &fakeRows{rows: [][]string{{"IN", "161"}, {"IN", "5640"}, {"MIN", "161"}}}
	got, err := groupByQualifier(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got["IN"]) != 2 || len(got["MIN"]) != 1 {
		t.Errorf("unexpected grouping %v", got)
	}

	boom := errors.New("conn reset")
	if _, err := groupByQualifier(&fakeRows{err: boom}); !errors.Is(err, boom) {
		t.Errorf("expected rows error, got %v", err)
	}
}

func TestCollectCodes(t *testing.T) {
	got, err := collectCodes(&fakeRows{rows: [][]string{{"0002-3227-30"}, {"0004-0038-22"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "0002-3227-30" || got[1] != "0004-0038-22" {
		t.Errorf("unexpected codes %v", got)
	}

	boom := errors.New("conn reset")
	if _, err := collectCodes(&fakeRows{err: boom}); !errors.Is(err, boom) {
		t.Errorf("expected rows error, got %v", err)
	}
}

func TestRelationsOf(t *testing.T) {
	e := catalog.Entry{
		Code:        "313782",
		Ingredients: map[string][]string{"IN": {"161"}},
		Remaps:      []string{"1000"},
		Linked:      map[string][]string{"ndc": {"0004-0038-22"}},
	}
	rels := relationsOf(e)
	sort.Slice(rels, func(i, j int) bool { return rels[i].kind < rels[j].kind })
	want := []relation{
		{kindIngredient, "IN", "161"},
		{kindLinked, "NDC", "0004-0038-22"},
		{kindRemap, "", "1000"},
	}
	if len(rels) != len(want) {
		t.Fatalf("expected %v, got %v", want, rels)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Errorf("relation %d: expected %v, got %v", i, want[i], rels[i])
		}
	}
}

func TestAdapter(t *testing.T) {
	s := New(nil)
	a := s.Adapter(codesystem.NDC, catalog.ProviderNDCSecondary)
	if a.system != "NDC" || a.Provider() != "ndc_secondary" {
		t.Errorf("unexpected adapter %+v", a)
	}
}

func TestSeed_NoPool(t *testing.T) {
	c, err := catalog.Parse([]byte("rxnorm:\n  - code: \"161\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(nil).Seed(context.Background(), c); !errors.Is(err, db.ErrNoPool) {
		t.Errorf("expected ErrNoPool, got %v", err)
	}
}
