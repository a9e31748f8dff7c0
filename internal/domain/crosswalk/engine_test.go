package crosswalk

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type stubLinker struct {
	links map[string][]string
	err   error
	calls int
}

func (s *stubLinker) FetchLinked(_ context.Context, code, _ string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.links[code], nil
}

type stubTranslator struct {
	results map[string][]Term
	calls   int
}

func (s *stubTranslator) Translate(_ context.Context, code, _, _ string) ([]Term, error) {
	s.calls++
	return s.results[code], nil
}

func TestKey(t *testing.T) {
	tests := map[string]string{
		"rxcui":       "RXNORM",
		"RxNorm":      "RXNORM",
		"ndc":         "NDC",
		"snomedct_us": "SNOMEDCT_US",
		" cui ":       "UMLS",
	}
	for in, want := range tests {
		if got := Key(in); got != want {
			t.Errorf("Key(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEngine_Undefined(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	if e.Has("NDC", "SNOMEDCT_US") {
		t.Fatal("expected no workflow")
	}
	if _, err := e.Get("NDC", "SNOMEDCT_US"); !errors.Is(err, ErrUndefinedCrosswalk) {
		t.Errorf("expected ErrUndefinedCrosswalk, got %v", err)
	}
	if _, err := e.Run(context.Background(), "NDC", "SNOMEDCT_US", "0004-0038-22"); !errors.Is(err, ErrUndefinedCrosswalk) {
		t.Errorf("expected ErrUndefinedCrosswalk from Run, got %v", err)
	}
}

func TestEngine_DefineExtends(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	e.Define("NDC", "RXNORM").AddStep(&recorder{}, NoResult)
	e.Define("ndc", "rxcui").AddStep(&recorder{out: terms("RXNORM", "161")}, nil)

	w, err := e.Get("NDC", "RXNORM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Len() != 2 {
		t.Errorf("expected the second Define to extend the first, got %d steps", w.Len())
	}
	if len(e.Pairs()) != 1 {
		t.Errorf("expected one pair, got %v", e.Pairs())
	}
}

func TestEngine_Exhausted(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	e.Define("RXNORM", "NDC").AddStep(&recorder{}, nil)
	if _, err := e.Run(context.Background(), "RXNORM", "NDC", "161"); !errors.Is(err, ErrCrosswalkExhausted) {
		t.Errorf("expected ErrCrosswalkExhausted, got %v", err)
	}
}

func TestEngine_Pairs(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	e.Define("RXNORM", "SNOMEDCT_US")
	e.Define("NDC", "RXNORM")
	e.Define("RXNORM", "NDC")

	got := e.Pairs()
	want := []Pair{{"NDC", "RXNORM"}, {"RXNORM", "NDC"}, {"RXNORM", "SNOMEDCT_US"}}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRegisterDefaults_ProviderChain(t *testing.T) {
	primary := &stubLinker{links: map[string][]string{}}
	secondary := &stubLinker{links: map[string][]string{"0004-0038-22": {"313782"}}}
	e := NewEngine(zerolog.Nop())
	RegisterDefaults(e, Providers{NDCToNormalized: []Linker{primary, secondary}})

	out, err := e.Run(context.Background(), "NDC", "RXNORM", "0004-0038-22")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("expected primary then secondary, got %d/%d calls", primary.calls, secondary.calls)
	}
	if len(out) != 1 || out[0].Code != "313782" || out[0].System != "RXNORM" {
		t.Errorf("unexpected output %v", out)
	}

	primary.links["0004-0038-22"] = []string{"161"}
	if _, err := e.Run(context.Background(), "NDC", "RXNORM", "0004-0038-22"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondary.calls != 1 {
		t.Errorf("secondary must not run after a primary hit, got %d calls", secondary.calls)
	}
}

func TestRegisterDefaults_Transitive(t *testing.T) {
	ndc := &stubLinker{links: map[string][]string{"0004-0038-22": {"313782"}}}
	umls := &stubTranslator{results: map[string][]Term{
		"313782": {{Code: "387517004", System: "SNOMEDCT_US", Name: "Paracetamol", CUI: "C0000970"}},
	}}
	e := NewEngine(zerolog.Nop())
	RegisterDefaults(e, Providers{NDCToNormalized: []Linker{ndc}, Universal: umls})

	out, err := e.Run(context.Background(), "NDC", "SNOMEDCT_US", "0004-0038-22")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].Code != "387517004" {
		t.Errorf("unexpected output %v", out)
	}

	if _, err := e.Run(context.Background(), "NDC", "SNOMEDCT_US", "9999-9999-99"); !errors.Is(err, ErrCrosswalkExhausted) {
		t.Errorf("expected exhaustion when the first hop finds nothing, got %v", err)
	}
	if umls.calls != 1 {
		t.Errorf("universal crosswalk must not run without an RXNORM code, got %d calls", umls.calls)
	}
}

func TestUniversal_RejectsVocabulary(t *testing.T) {
	w := NewWorkflow("RXNORM", "ICD10").AddConfig("src", "RXNORM").AddConfig("target_src", "ICD10")
	w.AddStep(Universal(&stubTranslator{}), nil)
	if _, err := w.Run(context.Background(), "161"); err == nil {
		t.Error("expected an unsupported vocabulary error")
	}

	missing := NewWorkflow("RXNORM", "SNOMEDCT_US").AddStep(Universal(&stubTranslator{}), nil)
	if _, err := missing.Run(context.Background(), "161"); !errors.Is(err, ErrMissingConfig) {
		t.Errorf("expected ErrMissingConfig, got %v", err)
	}
}
