package adapter

import (
	"context"
	"time"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
)

// Recorder receives one observation per adapter call.
type Recorder interface {
	ObserveCall(system, provider, op string, err error, elapsed time.Duration)
}

// Instrumented reports every call made through an adapter to a Recorder.
type Instrumented struct {
	next     medication.Adapter
	system   string
	provider string
	rec      Recorder
}

func Instrument(a medication.Adapter, system codesystem.System, provider string, rec Recorder) medication.Adapter {
	if rec == nil {
		return a
	}
	return &Instrumented{next: a, system: string(system), provider: provider, rec: rec}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.rec.ObserveCall(i.system, i.provider, op, err, time.Since(start))
}

func (i *Instrumented) Validate(ctx context.Context, code string) (bool, error) {
	start := time.Now()
	ok, err := i.next.Validate(ctx, code)
	i.observe("validate", start, err)
	return ok, err
}

func (i *Instrumented) FetchBase(ctx context.Context, code string) (*medication.Attributes, error) {
	start := time.Now()
	attrs, err := i.next.FetchBase(ctx, code)
	i.observe("fetch_base", start, err)
	return attrs, err
}

func (i *Instrumented) FetchIngredients(ctx context.Context, code string) (map[string][]string, error) {
	start := time.Now()
	ings, err := i.next.FetchIngredients(ctx, code)
	i.observe("fetch_ingredients", start, err)
	return ings, err
}

func (i *Instrumented) FetchRemaps(ctx context.Context, code string) ([]string, error) {
	start := time.Now()
	remaps, err := i.next.FetchRemaps(ctx, code)
	i.observe("fetch_remaps", start, err)
	return remaps, err
}

func (i *Instrumented) FetchHistory(ctx context.Context, code string) (*medication.History, error) {
	start := time.Now()
	h, err := i.next.FetchHistory(ctx, code)
	i.observe("fetch_history", start, err)
	return h, err
}

func (i *Instrumented) FetchLinked(ctx context.Context, code, target string) ([]string, error) {
	start := time.Now()
	linked, err := i.next.FetchLinked(ctx, code, target)
	i.observe("fetch_linked", start, err)
	return linked, err
}

func (i *Instrumented) FetchLinkedFrom(ctx context.Context, code, source string) ([]string, error) {
	start := time.Now()
	linked, err := linkedFrom(ctx, i.next, code, source)
	i.observe("fetch_linked_from", start, err)
	return linked, err
}
