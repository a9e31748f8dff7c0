package crosswalk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

var (
	// ErrUndefinedCrosswalk is returned for a (source, target) pair with no
	// workflow. Callers should check Has before running.
	ErrUndefinedCrosswalk = errors.New("crosswalk not defined")
	// ErrCrosswalkExhausted is returned when a workflow completes without a
	// target code.
	ErrCrosswalkExhausted = errors.New("crosswalk produced no result")
)

// Pair identifies a workflow.
type Pair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (p Pair) String() string { return p.Source + "->" + p.Target }

// Key normalizes a system label: code-system synonyms map to their canonical
// name and anything else is upper-cased, so "rxcui" and "RXNORM" name the
// same endpoint.
func Key(label string) string {
	if s, err := codesystem.Parse(label); err == nil {
		return string(s)
	}
	return strings.ToUpper(strings.TrimSpace(label))
}

// Engine holds the workflows keyed by (source, target). It never infers a
// path that was not defined.
type Engine struct {
	mu        sync.RWMutex
	workflows map[Pair]*Workflow
	logger    zerolog.Logger
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		workflows: make(map[Pair]*Workflow),
		logger:    logger.With().Str("component", "crosswalk").Logger(),
	}
}

// Define returns the workflow for (source, target), creating an empty one
// when none exists. Steps added later extend the existing workflow.
func (e *Engine) Define(source, target string) *Workflow {
	p := Pair{Source: Key(source), Target: Key(target)}
	e.mu.Lock()
	defer e.mu.Unlock()
	if w, ok := e.workflows[p]; ok {
		return w
	}
	w := &Workflow{Source: p.Source, Target: p.Target}
	e.workflows[p] = w
	return w
}

// Has reports whether a workflow is defined for the pair.
func (e *Engine) Has(source, target string) bool {
	_, err := e.Get(source, target)
	return err == nil
}

// Get returns the workflow for the pair or ErrUndefinedCrosswalk.
func (e *Engine) Get(source, target string) (*Workflow, error) {
	p := Pair{Source: Key(source), Target: Key(target)}
	e.mu.RLock()
	w, ok := e.workflows[p]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUndefinedCrosswalk, p)
	}
	return w, nil
}

// Pairs lists the defined pairs sorted by source then target.
func (e *Engine) Pairs() []Pair {
	e.mu.RLock()
	out := make([]Pair, 0, len(e.workflows))
	for p := range e.workflows {
		out = append(out, p)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Target < out[j].Target
	})
	return out
}

// Run translates code from source to target.
func (e *Engine) Run(ctx context.Context, source, target, code string) ([]Term, error) {
	w, err := e.Get(source, target)
	if err != nil {
		return nil, err
	}
	terms, err := w.Run(ctx, code)
	if err != nil {
		e.logger.Error().Err(err).Str("crosswalk", w.String()).Str("code", code).Msg("crosswalk aborted")
		return nil, err
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrCrosswalkExhausted, w, code)
	}
	e.logger.Debug().Str("crosswalk", w.String()).Str("code", code).Int("results", len(terms)).Msg("crosswalk complete")
	return terms, nil
}
