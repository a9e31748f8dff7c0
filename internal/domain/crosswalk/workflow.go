package crosswalk

import (
	"context"
	"fmt"
	"sync"
)

// Term is one code produced by a crosswalk step.
type Term struct {
	Code   string `json:"code"`
	System string `json:"system"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
	// CUI is the universal concept the term belongs to, when the provider
	// reports one.
	CUI string `json:"cui,omitempty"`
}

// Codes returns the codes of terms in order.
func Codes(terms []Term) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t.Code)
	}
	return out
}

// Input is what a step receives: the codes to translate plus the static
// configuration of the workflow running it.
type Input struct {
	Codes  []string
	Config map[string]string
}

// Param returns a configuration value.
func (in Input) Param(key string) string {
	return in.Config[key]
}

// Step is anything a workflow can run: a Resolver or a nested *Workflow.
type Step interface {
	Resolve(ctx context.Context, in Input) ([]Term, error)
}

// Resolver adapts a function to Step.
type Resolver func(ctx context.Context, in Input) ([]Term, error)

func (f Resolver) Resolve(ctx context.Context, in Input) ([]Term, error) {
	return f(ctx, in)
}

// Condition decides, from a step's output, whether the chain continues.
type Condition func(out []Term) bool

// NoResult continues only when the step produced nothing. It encodes
// "fall back to the next provider".
func NoResult(out []Term) bool { return len(out) == 0 }

// HasResult continues only when the step produced something.
func HasResult(out []Term) bool { return len(out) > 0 }

// StepError reports the step that aborted a run.
type StepError struct {
	Workflow string
	Index    int
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("crosswalk %s: step %d: %v", e.Workflow, e.Index, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type stage struct {
	step       Step
	continueIf Condition
}

// Workflow is an ordered pipeline of steps translating codes from Source
// to Target.
type Workflow struct {
	Source string
	Target string

	mu     sync.RWMutex
	stages []stage
	config map[string]string
}

// NewWorkflow returns an empty workflow that is not registered with any
// engine, for use as a nested step.
func NewWorkflow(source, target string) *Workflow {
	return &Workflow{Source: Key(source), Target: Key(target)}
}

func (w *Workflow) String() string { return w.Source + "->" + w.Target }

// AddStep appends a step. A nil continueIf always continues.
func (w *Workflow) AddStep(step Step, continueIf Condition) *Workflow {
	if step == nil {
		return w
	}
	if nested, ok := step.(*Workflow); ok && nested == w {
		panic("crosswalk: workflow " + w.String() + " cannot contain itself")
	}
	w.mu.Lock()
	w.stages = append(w.stages, stage{step: step, continueIf: continueIf})
	w.mu.Unlock()
	return w
}

// AddConfig attaches a static parameter merged into every step input.
func (w *Workflow) AddConfig(key, value string) *Workflow {
	w.mu.Lock()
	if w.config == nil {
		w.config = make(map[string]string)
	}
	w.config[key] = value
	w.mu.Unlock()
	return w
}

// Len returns the number of steps.
func (w *Workflow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.stages)
}

// Resolve runs the workflow so that it can be nested inside another one.
func (w *Workflow) Resolve(ctx context.Context, in Input) ([]Term, error) {
	return w.Run(ctx, in.Codes...)
}

// Run executes the steps in order. Each step receives the previous step's
// codes, or the original codes when the previous step produced nothing. A
// step with a condition ends the chain as soon as the condition fails. An
// erroring step aborts the run without a partial result.
func (w *Workflow) Run(ctx context.Context, codes ...string) ([]Term, error) {
	w.mu.RLock()
	stages := append([]stage(nil), w.stages...)
	config := make(map[string]string, len(w.config))
	for k, v := range w.config {
		config[k] = v
	}
	w.mu.RUnlock()

	var out []Term
	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return nil, &StepError{Workflow: w.String(), Index: i, Err: err}
		}
		in := Input{Codes: codes, Config: config}
		if len(out) > 0 {
			in.Codes = Codes(out)
		}
		res, err := st.step.Resolve(ctx, in)
		if err != nil {
			return nil, &StepError{Workflow: w.String(), Index: i, Err: err}
		}
		out = res
		if st.continueIf != nil && !st.continueIf(out) {
			break
		}
	}
	return out, nil
}
