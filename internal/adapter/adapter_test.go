package adapter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
)

type fakeAdapter struct {
	mu     sync.Mutex
	base   map[string]*medication.Attributes
	linked map[string][]string
	from   map[string][]string
	err    error
	block  bool
	calls  []time.Time
}

func (f *fakeAdapter) hit(ctx context.Context) error {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	block, err := f.block, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakeAdapter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAdapter) Validate(ctx context.Context, code string) (bool, error) {
	if err := f.hit(ctx); err != nil {
		return false, err
	}
	a := f.base[code]
	return a != nil && a.Valid, nil
}

func (f *fakeAdapter) FetchBase(ctx context.Context, code string) (*medication.Attributes, error) {
	if err := f.hit(ctx); err != nil {
		return nil, err
	}
	return f.base[code], nil
}

func (f *fakeAdapter) FetchIngredients(ctx context.Context, _ string) (map[string][]string, error) {
	return nil, f.hit(ctx)
}

func (f *fakeAdapter) FetchRemaps(ctx context.Context, _ string) ([]string, error) {
	return nil, f.hit(ctx)
}

func (f *fakeAdapter) FetchHistory(ctx context.Context, _ string) (*medication.History, error) {
	return nil, f.hit(ctx)
}

func (f *fakeAdapter) FetchLinked(ctx context.Context, code, _ string) ([]string, error) {
	if err := f.hit(ctx); err != nil {
		return nil, err
	}
	return f.linked[code], nil
}

func (f *fakeAdapter) FetchLinkedFrom(ctx context.Context, code, _ string) ([]string, error) {
	if err := f.hit(ctx); err != nil {
		return nil, err
	}
	return f.from[code], nil
}

// forwardOnly hides FetchLinkedFrom.
type forwardOnly struct {
	medication.Adapter
}

func TestThrottle_SpacesCalls(t *testing.T) {
	fake := &fakeAdapter{}
	a := Throttle(fake, Options{MinInterval: 20 * time.Millisecond})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := a.FetchRemaps(ctx, "161"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for i := 1; i < len(fake.calls); i++ {
		if gap := fake.calls[i].Sub(fake.calls[i-1]); gap < 15*time.Millisecond {
			t.Errorf("calls %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestThrottle_NoIntervalDoesNotWait(t *testing.T) {
	fake := &fakeAdapter{}
	a := Throttle(fake, Options{})
	start := time.Now()
	for i := 0; i < 50; i++ {
		a.FetchRemaps(context.Background(), "161")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("unthrottled calls took %v", elapsed)
	}
}

func TestThrottle_Timeout(t *testing.T) {
	fake := &fakeAdapter{block: true}
	a := Throttle(fake, Options{Timeout: 20 * time.Millisecond})

	_, err := a.FetchBase(context.Background(), "161")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestThrottle_CancelledWhileWaiting(t *testing.T) {
	fake := &fakeAdapter{}
	a := Throttle(fake, Options{MinInterval: time.Hour})
	a.FetchRemaps(context.Background(), "161")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := a.FetchRemaps(ctx, "161"); err == nil {
		t.Error("expected the wait to fail")
	}
	if fake.count() != 1 {
		t.Errorf("second call must not reach the provider, got %d calls", fake.count())
	}
}

func TestFallback(t *testing.T) {
	primary := &fakeAdapter{
		base:   map[string]*medication.Attributes{"0004-0038-22": {Valid: true, Name: "primary"}},
		linked: map[string][]string{},
	}
	secondary := &fakeAdapter{
		base:   map[string]*medication.Attributes{"0004-0038-22": {Valid: true, Name: "secondary"}, "0002-3227-30": {Valid: true, Name: "secondary only"}},
		linked: map[string][]string{"0004-0038-22": {"313782"}},
	}
	a := Fallback(primary, secondary)
	ctx := context.Background()

	attrs, _ := a.FetchBase(ctx, "0004-0038-22")
	if attrs.Name != "primary" || secondary.count() != 0 {
		t.Errorf("primary hit must not consult secondary, got %q and %d calls", attrs.Name, secondary.count())
	}
	attrs, _ = a.FetchBase(ctx, "0002-3227-30")
	if attrs == nil || attrs.Name != "secondary only" {
		t.Errorf("expected secondary record, got %+v", attrs)
	}
	ok, _ := a.Validate(ctx, "0002-3227-30")
	if !ok {
		t.Error("expected secondary to validate")
	}
	linked, _ := a.FetchLinked(ctx, "0004-0038-22", "RXNORM")
	if len(linked) != 1 || linked[0] != "313782" {
		t.Errorf("expected secondary links, got %v", linked)
	}

	boom := errors.New("primary down")
	primary.err = boom
	before := secondary.count()
	if _, err := a.FetchBase(ctx, "0004-0038-22"); !errors.Is(err, boom) {
		t.Errorf("expected primary error, got %v", err)
	}
	if secondary.count() != before {
		t.Error("primary errors must not fall through to the secondary")
	}
}

func TestFallback_Nil(t *testing.T) {
	primary := &fakeAdapter{}
	if Fallback(primary, nil) != medication.Adapter(primary) {
		t.Error("expected primary when there is no secondary")
	}
	if Fallback(nil, primary) != medication.Adapter(primary) {
		t.Error("expected secondary when there is no primary")
	}
}

type call struct {
	system, provider, op string
	err                  error
}

type fakeRecorder struct {
	calls []call
}

func (r *fakeRecorder) ObserveCall(system, provider, op string, err error, _ time.Duration) {
	r.calls = append(r.calls, call{system, provider, op, err})
}

func TestInstrument(t *testing.T) {
	fake := &fakeAdapter{base: map[string]*medication.Attributes{"161": {Valid: true}}}
	rec := &fakeRecorder{}
	a := Instrument(fake, codesystem.Normalized, "rxnav", rec)
	ctx := context.Background()

	a.FetchBase(ctx, "161")
	a.FetchLinked(ctx, "161", "NDC")
	fake.err = errors.New("down")
	a.FetchIngredients(ctx, "161")

	if len(rec.calls) != 3 {
		t.Fatalf("expected 3 observations, got %d", len(rec.calls))
	}
	if rec.calls[0] != (call{"RXNORM", "rxnav", "fetch_base", nil}) {
		t.Errorf("unexpected observation %+v", rec.calls[0])
	}
	if rec.calls[1].op != "fetch_linked" {
		t.Errorf("unexpected op %q", rec.calls[1].op)
	}
	if rec.calls[2].err == nil {
		t.Error("expected the error to be observed")
	}

	if Instrument(fake, codesystem.Normalized, "rxnav", nil) != medication.Adapter(fake) {
		t.Error("nil recorder should return the adapter unchanged")
	}
}

func TestReverse_ThroughDecorators(t *testing.T) {
	fake := &fakeAdapter{from: map[string][]string{"313782": {"0004-0038-22"}}}
	rec := &fakeRecorder{}
	wrapped := Instrument(Throttle(fake, Options{Timeout: time.Second}), codesystem.NDC, "openfda", rec)
	l := Reverse(wrapped, codesystem.Normalized)

	got, err := l.FetchLinked(context.Background(), "313782", "NDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "0004-0038-22" {
		t.Errorf("expected reverse link, got %v", got)
	}
	if len(rec.calls) != 1 || rec.calls[0].op != "fetch_linked_from" {
		t.Errorf("unexpected observations %+v", rec.calls)
	}
	if fake.count() != 1 {
		t.Errorf("expected one provider call, got %d", fake.count())
	}
}

func TestReverse_WithoutIndex(t *testing.T) {
	fake := &fakeAdapter{from: map[string][]string{"313782": {"0004-0038-22"}}}
	l := Reverse(forwardOnly{fake}, codesystem.Normalized)

	got, err := l.FetchLinked(context.Background(), "313782", "NDC")
	if err != nil || len(got) != 0 {
		t.Errorf("expected no links, got %v %v", got, err)
	}
	if fake.count() != 0 {
		t.Errorf("provider must not be called, got %d calls", fake.count())
	}
}

func TestFallback_Reverse(t *testing.T) {
	primary := &fakeAdapter{from: map[string][]string{}}
	secondary := &fakeAdapter{from: map[string][]string{"310965": {"0002-3227-30"}}}
	l := Reverse(Fallback(primary, secondary), codesystem.Normalized)

	got, err := l.FetchLinked(context.Background(), "310965", "NDC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != "0002-3227-30" {
		t.Errorf("expected secondary reverse link, got %v", got)
	}
	if primary.count() != 1 || secondary.count() != 1 {
		t.Errorf("expected both providers consulted once, got %d and %d", primary.count(), secondary.count())
	}
}
