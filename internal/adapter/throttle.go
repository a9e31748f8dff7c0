package adapter

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ehr/medxwalk/internal/domain/medication"
)

// Options configure a throttled adapter.
type Options struct {
	// MinInterval is the minimum spacing between two calls. Zero disables
	// spacing.
	MinInterval time.Duration
	// Timeout bounds each call. Zero leaves the caller's deadline alone.
	Timeout time.Duration
}

// Throttled spaces the calls made through one adapter instance and bounds
// each of them with a timeout.
type Throttled struct {
	next    medication.Adapter
	limiter *rate.Limiter
	timeout time.Duration
}

// Throttle wraps a so that successive calls are at least opts.MinInterval
// apart. Callers that would arrive early wait; a caller whose context ends
// while waiting gets the context error.
func Throttle(a medication.Adapter, opts Options) *Throttled {
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &Throttled{
		next:    a,
		limiter: rate.NewLimiter(limit, 1),
		timeout: opts.Timeout,
	}
}

func (t *Throttled) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if t.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
	}
	if err := t.limiter.Wait(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	return ctx, cancel, nil
}

func (t *Throttled) Validate(ctx context.Context, code string) (bool, error) {
	ctx, cancel, err := t.begin(ctx)
	if err != nil {
		return false, err
	}
	defer cancel()
	return t.next.Validate(ctx, code)
}

func (t *Throttled) FetchBase(ctx context.Context, code string) (*medication.Attributes, error) {
	ctx, cancel, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return t.next.FetchBase(ctx, code)
}

func (t *Throttled) FetchIngredients(ctx context.Context, code string) (map[string][]string, error) {
	ctx, cancel, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return t.next.FetchIngredients(ctx, code)
}

func (t *Throttled) FetchRemaps(ctx context.Context, code string) ([]string, error) {
	ctx, cancel, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return t.next.FetchRemaps(ctx, code)
}

func (t *Throttled) FetchHistory(ctx context.Context, code string) (*medication.History, error) {
	ctx, cancel, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return t.next.FetchHistory(ctx, code)
}

func (t *Throttled) FetchLinked(ctx context.Context, code, target string) ([]string, error) {
	ctx, cancel, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return t.next.FetchLinked(ctx, code, target)
}

func (t *Throttled) FetchLinkedFrom(ctx context.Context, code, source string) ([]string, error) {
	ctx, cancel, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return linkedFrom(ctx, t.next, code, source)
}
