package crosswalk

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

var ErrMissingConfig = errors.New("crosswalk step missing configuration")

// Linker answers "which target codes is this code linked to". Every
// medication.Adapter satisfies it.
type Linker interface {
	FetchLinked(ctx context.Context, code, target string) ([]string, error)
}

// Translator is a universal crosswalk between source vocabularies.
type Translator interface {
	Translate(ctx context.Context, code, source, target string) ([]Term, error)
}

// Providers are the back ends the default workflows are built from. Linkers
// are tried in order; the first one producing a result wins.
type Providers struct {
	NDCToNormalized []Linker
	NormalizedToNDC []Linker
	Universal       Translator
}

// Linked wraps a Linker as a step that resolves each input code into target.
func Linked(l Linker, target codesystem.System) Resolver {
	return func(ctx context.Context, in Input) ([]Term, error) {
		var out []Term
		seen := make(map[string]bool)
		for _, code := range in.Codes {
			codes, err := l.FetchLinked(ctx, code, string(target))
			if err != nil {
				return nil, err
			}
			for _, c := range codes {
				if seen[c] {
					continue
				}
				seen[c] = true
				out = append(out, Term{Code: c, System: string(target)})
			}
		}
		return out, nil
	}
}

// Universal wraps a Translator as a step. The vocabularies come from the
// workflow configuration keys "src" and "target_src".
func Universal(t Translator) Resolver {
	return func(ctx context.Context, in Input) ([]Term, error) {
		src, target := in.Param("src"), in.Param("target_src")
		if src == "" || target == "" {
			return nil, fmt.Errorf("%w: src and target_src are required", ErrMissingConfig)
		}
		for _, v := range []string{src, target} {
			if !codesystem.IsUniversalSource(v) {
				return nil, fmt.Errorf("%w: %s", codesystem.ErrUnknownVocabulary, v)
			}
		}
		var out []Term
		for _, code := range in.Codes {
			terms, err := t.Translate(ctx, code, src, target)
			if err != nil {
				return nil, err
			}
			out = append(out, terms...)
		}
		return out, nil
	}
}

// Chain builds a workflow that tries each linker in turn, moving on only
// when the previous one found nothing.
func Chain(source, target codesystem.System, linkers ...Linker) *Workflow {
	w := NewWorkflow(string(source), string(target))
	for i, l := range linkers {
		if l == nil {
			continue
		}
		branch := NewWorkflow(fmt.Sprintf("%s%d", source, i+1), fmt.Sprintf("%s%d", target, i+1))
		branch.AddStep(Linked(l, target), nil)
		var cond Condition
		if i < len(linkers)-1 {
			cond = NoResult
		}
		w.AddStep(branch, cond)
	}
	return w
}

// RegisterDefaults defines the standard crosswalks on e:
//
//	NDC -> RXNORM          provider chain
//	RXNORM -> NDC          provider chain
//	RXNORM -> SNOMEDCT_US  universal crosswalk
//	NDC -> SNOMEDCT_US     NDC -> RXNORM, then RXNORM -> SNOMEDCT_US
func RegisterDefaults(e *Engine, p Providers) {
	ndcRx := e.Define(string(codesystem.NDC), string(codesystem.Normalized))
	if len(p.NDCToNormalized) > 0 {
		ndcRx.AddStep(Chain(codesystem.NDC, codesystem.Normalized, p.NDCToNormalized...), nil)
	}

	rxNDC := e.Define(string(codesystem.Normalized), string(codesystem.NDC))
	if len(p.NormalizedToNDC) > 0 {
		rxNDC.AddStep(Chain(codesystem.Normalized, codesystem.NDC, p.NormalizedToNDC...), nil)
	}

	if p.Universal == nil {
		return
	}
	rxSnomed := e.Define(string(codesystem.Normalized), codesystem.VocabSNOMEDUS)
	rxSnomed.AddConfig("src", codesystem.VocabRxNorm).AddConfig("target_src", codesystem.VocabSNOMEDUS)
	rxSnomed.AddStep(Universal(p.Universal), nil)

	ndcSnomed := e.Define(string(codesystem.NDC), codesystem.VocabSNOMEDUS)
	ndcSnomed.AddStep(ndcRx, HasResult)
	ndcSnomed.AddStep(rxSnomed, nil)
}
