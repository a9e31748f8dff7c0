package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
)

var (
	ErrMissingLocalID = errors.New("row has no local id")
	ErrMissingCode    = errors.New("row has no code")
)

// Row outcomes reported to an Observer.
const (
	OutcomeRecord    = "record"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
	OutcomeRequeued  = "requeued"
)

// Observer receives one call per row outcome.
type Observer interface {
	ObserveRow(outcome string)
}

// RowError describes one rejected or partially attached row.
type RowError struct {
	Line    int    `json:"line"`
	LocalID string `json:"local_id,omitempty"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
	Message string `json:"error"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d (%s %s): %v", e.Line, e.LocalID, e.Code, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Stats are the load counters. Each worker owns one Stats during the
// parallel phase; they are merged after every worker has stopped.
type Stats struct {
	Records    int        `json:"records"`
	Duplicates int        `json:"duplicates"`
	Errors     int        `json:"errors"`
	Failures   []RowError `json:"failures,omitempty"`
}

func (s *Stats) merge(o Stats) {
	s.Records += o.Records
	s.Duplicates += o.Duplicates
	s.Errors += o.Errors
	s.Failures = append(s.Failures, o.Failures...)
}

// fail counts one failed row and records each of its errors.
func (s *Stats) fail(t task, code string, errs ...error) {
	s.Errors++
	for _, err := range errs {
		s.Failures = append(s.Failures, RowError{
			Line:    t.row.Line,
			LocalID: t.id,
			Code:    code,
			Err:     err,
			Message: err.Error(),
		})
	}
}

type Options struct {
	Workers  int
	Columns  Columns
	Observer Observer
}

// Loader creates or merges local medications from input rows.
type Loader struct {
	meds   *medication.Service
	opts   Options
	logger zerolog.Logger
}

func New(meds *medication.Service, opts Options, logger zerolog.Logger) *Loader {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Columns == (Columns{}) {
		opts.Columns = DefaultColumns()
	}
	return &Loader{
		meds:   meds,
		opts:   opts,
		logger: logger.With().Str("component", "loader").Logger(),
	}
}

func (l *Loader) Columns() Columns { return l.opts.Columns }

// WithWorkers returns a copy of l that runs n workers.
func (l *Loader) WithWorkers(n int) *Loader {
	c := *l
	if n > 0 {
		c.opts.Workers = n
	}
	return &c
}

// LoadFile opens path and loads it as a batch named after the file.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Batch, error) {
	f, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := NewCSVSource(f, l.opts.Columns)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path, src)
}

// Load runs the worker pool over src. Row-level failures are counted and
// never abort the load. A read error or cancellation stops the load and
// returns the batch with the partial counters alongside the error.
func (l *Loader) Load(ctx context.Context, name string, src RowSource) (*Batch, error) {
	batch := newBatch(name, l.meds.Registry())
	d := newDispatcher(l.opts.Workers)
	stop := context.AfterFunc(ctx, d.close)
	defer stop()

	perWorker := make([]Stats, l.opts.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < l.opts.Workers; i++ {
		st := &perWorker[i]
		g.Go(func() error {
			return l.work(gctx, batch, d, st)
		})
	}

	readErr := l.feed(ctx, src, d)
	if readErr != nil {
		d.close()
	}
	waitErr := g.Wait()

	var total Stats
	for _, st := range perWorker {
		total.merge(st)
	}
	batch.setStats(total)

	l.logger.Info().
		Str("batch", batch.ID.String()).
		Str("name", name).
		Int("records", total.Records).
		Int("duplicates", total.Duplicates).
		Int("errors", total.Errors).
		Msg("load complete")

	if readErr != nil {
		return batch, readErr
	}
	return batch, waitErr
}

func (l *Loader) feed(ctx context.Context, src RowSource, d *dispatcher) error {
	defer d.finish()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		d.push(task{row: row, id: row.Get(l.opts.Columns.LocalID)})
	}
}

// work drains the queue until the dispatcher stops. A worker stopped by
// cancellation reports the context error.
func (l *Loader) work(ctx context.Context, batch *Batch, d *dispatcher, st *Stats) error {
	for {
		t := d.next()
		if t.sentinel {
			return ctx.Err()
		}
		if t.id == "" {
			st.fail(t, "", ErrMissingLocalID)
			l.observe(OutcomeError)
			d.done()
			continue
		}
		if !d.acquire(t) {
			l.observe(OutcomeRequeued)
			continue
		}
		l.processRow(ctx, batch, t, st)
		d.release(t.id)
	}
}

// processRow runs with t.id held in the in-flight set, so the lookup and
// creation of the local medication cannot race with another row for the
// same id.
func (l *Loader) processRow(ctx context.Context, batch *Batch, t task, st *Stats) {
	cols := l.opts.Columns
	local, _, err := l.meds.Local(t.id, batch.Name)
	if err != nil {
		st.fail(t, "", err)
		l.observe(OutcomeError)
		return
	}
	if batch.scope.Add(codesystem.Local, t.id, local) {
		st.Records++
		l.observe(OutcomeRecord)
	} else {
		st.Duplicates++
		l.observe(OutcomeDuplicate)
	}

	if name := CleanName(t.row.Get(cols.LocalName)); name != "" {
		local.SetName(name)
	}

	if errs := l.attach(ctx, batch, local, t); len(errs) > 0 {
		st.fail(t, t.row.Get(cols.Code), errs...)
		l.observe(OutcomeError)
	}
}

// attach checks the row's code against its declared type and links it to
// the local medication. Syntax failures return before any adapter call.
func (l *Loader) attach(ctx context.Context, batch *Batch, local *medication.Local, t task) []error {
	cols := l.opts.Columns
	code := t.row.Get(cols.Code)
	if code == "" {
		return []error{ErrMissingCode}
	}
	system, err := codesystem.Parse(t.row.Get(cols.CodeType))
	if err != nil {
		return []error{err}
	}
	if err := codesystem.CheckSyntax(system, code); err != nil {
		return []error{err}
	}
	batch.addSystem(system)

	codeName := ""
	if cols.CodeName != "" {
		codeName = CleanName(t.row.Get(cols.CodeName))
	}

	switch system {
	case codesystem.Local:
		// A LOCAL code row only carries the display name of the local
		// medication itself.
		if local.Name() == "" && codeName != "" {
			local.SetName(codeName)
		}
		return nil
	case codesystem.Generic:
		generic, _, err := l.meds.Generic(code, batch.Name)
		if err != nil {
			return []error{err}
		}
		if codeName != "" {
			generic.SetName(codeName)
		}
		batch.scope.Add(codesystem.Generic, code, generic)
		_, errs := local.AddLinked(ctx, system, medication.Resolved(generic))
		return errs
	}

	ref := medication.Single(code)
	if codeName != "" {
		ref = medication.Named(code, codeName)
	}
	linked, errs := local.AddLinked(ctx, system, ref)
	for _, e := range linked {
		batch.scope.Add(system, e.Code(), e)
	}
	return errs
}

func (l *Loader) observe(outcome string) {
	if l.opts.Observer != nil {
		l.opts.Observer.ObserveRow(outcome)
	}
}

var escapedChars = regexp.MustCompile(`\\["n]`)

// CleanName strips escaped quotes and newlines left in exported names.
func CleanName(name string) string {
	return strings.TrimSpace(escapedChars.ReplaceAllString(name, ""))
}
