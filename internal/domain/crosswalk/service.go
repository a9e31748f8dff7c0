package crosswalk

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
)

// Result classifies a crosswalk run.
type Result string

const (
	ResultFound     Result = "found"
	ResultNoResult  Result = "no_result"
	ResultUndefined Result = "undefined"
)

// Outcome is the reportable result of translating one code.
type Outcome struct {
	Source string            `json:"source"`
	Target string            `json:"target"`
	Code   string            `json:"code"`
	Result Result            `json:"result"`
	Terms  []Term            `json:"terms,omitempty"`
	Linked []medication.View `json:"linked,omitempty"`
	Errors []string          `json:"errors,omitempty"`
}

// Service runs crosswalks for registry entities and records the results as
// links on the source entity.
type Service struct {
	engine *Engine
	meds   *medication.Service
	logger zerolog.Logger
}

func NewService(engine *Engine, meds *medication.Service, logger zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		meds:   meds,
		logger: logger.With().Str("component", "crosswalk").Logger(),
	}
}

func (s *Service) Engine() *Engine { return s.engine }

// Translate runs the (source, target) crosswalk for code. An undefined pair
// or an empty run is reported in the outcome rather than as an error; the
// error return is reserved for malformed input and aborted runs.
func (s *Service) Translate(ctx context.Context, source codesystem.System, target, code string) (*Outcome, error) {
	target = Key(target)
	out := &Outcome{Source: string(source), Target: target, Code: code}

	if err := codesystem.CheckSyntax(source, code); err != nil {
		return nil, err
	}
	if !s.engine.Has(string(source), target) {
		out.Result = ResultUndefined
		return out, nil
	}

	src, err := s.meds.Get(ctx, source, code)
	if err != nil {
		return nil, err
	}

	terms, err := s.engine.Run(ctx, string(source), target, code)
	if errors.Is(err, ErrCrosswalkExhausted) {
		out.Result = ResultNoResult
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.Result = ResultFound
	out.Terms = terms

	system, refs := linkRefs(target, terms)
	if len(refs) == 0 {
		return out, nil
	}
	linked, errs := src.AddLinked(ctx, system, medication.Many(refs...))
	out.Linked = medication.Views(linked)
	for _, e := range errs {
		out.Errors = append(out.Errors, e.Error())
		s.logger.Warn().Err(e).Str("code", code).Str("target", target).Msg("crosswalk result not linked")
	}
	return out, nil
}

// linkRefs decides where crosswalk terms live in the registry. Terms in a
// registry code system are adopted as such; vocabulary terms are linked
// through the universal concept they belong to.
func linkRefs(target string, terms []Term) (codesystem.System, []medication.CodeRef) {
	var refs []medication.CodeRef
	if system, err := codesystem.Parse(target); err == nil {
		for _, t := range terms {
			if t.Name == "" {
				refs = append(refs, medication.Single(t.Code))
				continue
			}
			refs = append(refs, medication.Record(t.Code, medication.Attributes{
				Valid:  true,
				Name:   t.Name,
				Status: t.Status,
			}))
		}
		return system, refs
	}
	for _, t := range terms {
		if t.CUI != "" {
			refs = append(refs, medication.Named(t.CUI, t.Name))
		}
	}
	return codesystem.Universal, refs
}
