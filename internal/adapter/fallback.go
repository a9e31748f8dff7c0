package adapter

import (
	"context"

	"github.com/ehr/medxwalk/internal/domain/medication"
)

// Chain consults the primary adapter first and the secondary only when the
// primary knows nothing about the code. Errors from the primary are
// returned as is; a failing provider is not the same as an unknown code.
type Chain struct {
	primary   medication.Adapter
	secondary medication.Adapter
}

func Fallback(primary, secondary medication.Adapter) medication.Adapter {
	if secondary == nil {
		return primary
	}
	if primary == nil {
		return secondary
	}
	return &Chain{primary: primary, secondary: secondary}
}

func (c *Chain) Validate(ctx context.Context, code string) (bool, error) {
	ok, err := c.primary.Validate(ctx, code)
	if err != nil || ok {
		return ok, err
	}
	return c.secondary.Validate(ctx, code)
}

func (c *Chain) FetchBase(ctx context.Context, code string) (*medication.Attributes, error) {
	attrs, err := c.primary.FetchBase(ctx, code)
	if err != nil || (attrs != nil && attrs.Valid) {
		return attrs, err
	}
	return c.secondary.FetchBase(ctx, code)
}

func (c *Chain) FetchIngredients(ctx context.Context, code string) (map[string][]string, error) {
	ings, err := c.primary.FetchIngredients(ctx, code)
	if err != nil || len(ings) > 0 {
		return ings, err
	}
	return c.secondary.FetchIngredients(ctx, code)
}

func (c *Chain) FetchRemaps(ctx context.Context, code string) ([]string, error) {
	remaps, err := c.primary.FetchRemaps(ctx, code)
	if err != nil || len(remaps) > 0 {
		return remaps, err
	}
	return c.secondary.FetchRemaps(ctx, code)
}

func (c *Chain) FetchHistory(ctx context.Context, code string) (*medication.History, error) {
	h, err := c.primary.FetchHistory(ctx, code)
	if err != nil || h != nil {
		return h, err
	}
	return c.secondary.FetchHistory(ctx, code)
}

func (c *Chain) FetchLinked(ctx context.Context, code, target string) ([]string, error) {
	linked, err := c.primary.FetchLinked(ctx, code, target)
	if err != nil || len(linked) > 0 {
		return linked, err
	}
	return c.secondary.FetchLinked(ctx, code, target)
}

func (c *Chain) FetchLinkedFrom(ctx context.Context, code, source string) ([]string, error) {
	linked, err := linkedFrom(ctx, c.primary, code, source)
	if err != nil || len(linked) > 0 {
		return linked, err
	}
	return linkedFrom(ctx, c.secondary, code, source)
}
