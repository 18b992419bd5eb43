package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/executor"
	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/report"
	"github.com/seantiz/xbrowse/internal/result"
	"github.com/seantiz/xbrowse/internal/session"
	"github.com/seantiz/xbrowse/internal/store"
	"github.com/seantiz/xbrowse/internal/suite"
)

var (
	// ErrUnknownRun is returned for run IDs the orchestrator does not hold.
	ErrUnknownRun = errors.New("unknown run")

	// ErrRunFinished is returned when cancelling a run that has completed.
	ErrRunFinished = errors.New("run already finished")
)

// Sessions acquires and releases browser sessions. *session.Manager
// implements it.
type Sessions interface {
	Acquire(ctx context.Context, desc browser.EngineDescriptor, cfg session.Config) (*session.Session, error)
	Release(ctx context.Context, s *session.Session) error
	HealthCheck(ctx context.Context, s *session.Session) error
}

var _ Sessions = (*session.Manager)(nil)

// Request describes one run.
type Request struct {
	// Engines to run on. Empty means every available engine.
	Engines []string `json:"engines,omitempty"`

	// Tests are glob patterns over test IDs. Empty means every test.
	Tests []string `json:"tests,omitempty"`

	// Tags filter the selected tests further.
	Tags []string `json:"tags,omitempty"`

	// Concurrency is the worker pool size. Zero uses the configured
	// default.
	Concurrency int `json:"concurrency,omitempty"`

	Overrides model.Overrides `json:"overrides"`
}

// Options configures an Orchestrator.
type Options struct {
	Catalog  *suite.Catalog
	Engines  *browser.Snapshot
	Sessions Sessions

	// Store persists runs and outcomes. Nil disables persistence.
	Store store.Store

	// Session is the default session configuration; request overrides are
	// applied on top.
	Session session.Config

	// Timeout is the default per-test timeout.
	Timeout time.Duration

	BaseURL string

	// ResultsDir receives one directory per run with results.json and
	// screenshots. Empty disables report output.
	ResultsDir string

	// Concurrency is the pool size for requests that do not set one.
	Concurrency int

	// TracerProvider receives run and unit spans. Nil uses the global
	// provider.
	TracerProvider trace.TracerProvider

	// RetainRuns is how many finished runs stay queryable in memory along
	// with their event history. Older ones are served from Store only.
	// Zero uses DefaultRetainRuns.
	RetainRuns int
}

// DefaultRetainRuns is the number of finished runs kept in memory.
const DefaultRetainRuns = 64

// Orchestrator expands requests into execution units and runs them on a
// bounded worker pool.
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	broker *Broker
	wg     sync.WaitGroup

	mu       sync.Mutex
	runs     map[string]*tracked
	finished []string // completion order
}

type tracked struct {
	run    model.Run
	agg    *result.Aggregate
	dir    string
	cancel context.CancelFunc
}

// New creates an orchestrator.
func New(opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Catalog == nil {
		opts.Catalog = suite.NewCatalog()
	}
	if opts.Engines == nil {
		opts.Engines = browser.NewSnapshot()
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.RetainRuns <= 0 {
		opts.RetainRuns = DefaultRetainRuns
	}
	return &Orchestrator{
		opts:   opts,
		logger: logger.With("component", "orchestrator"),
		tracer: opts.TracerProvider.Tracer("xbrowse/orchestrator"),
		broker: NewBroker(),
		runs:   make(map[string]*tracked),
	}
}

// Subscribe returns a run's event history, a channel of later events and
// an unsubscribe function. Runs this orchestrator does not hold, including
// evicted ones, return ErrUnknownRun.
func (o *Orchestrator) Subscribe(runID string) ([]Event, <-chan Event, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.runs[runID]; !ok {
		return nil, nil, nil, ErrUnknownRun
	}
	history, ch, unsub := o.broker.Subscribe(runID)
	return history, ch, unsub, nil
}

// Engines returns the engine snapshot runs are planned against.
func (o *Orchestrator) Engines() *browser.Snapshot {
	return o.opts.Engines
}

// Catalog returns the test catalog.
func (o *Orchestrator) Catalog() *suite.Catalog {
	return o.opts.Catalog
}

// Execute runs req to completion and returns the finalized aggregate.
// Cancelling ctx stops scheduling: units already started finish, the rest
// are recorded as skipped. Execute never fails; every problem becomes an
// outcome or a diagnostic on the aggregate.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *result.Aggregate {
	tr := o.prepare(ctx, req, nil)
	o.execute(ctx, tr, req)
	return tr.agg
}

// Submit creates a pending run and executes it in the background. The run
// is not bound to ctx; use Cancel or Shutdown to stop it.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (model.Run, error) {
	for _, p := range req.Tests {
		if err := suite.CheckPattern(p); err != nil {
			return model.Run{}, err
		}
	}

	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	tr := o.prepare(ctx, req, cancel)

	o.wg.Go(func() {
		defer cancel()
		o.execute(rctx, tr, req)
	})
	return tr.run, nil
}

// Wait blocks until all submitted runs complete.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Cancel stops scheduling new units for a submitted run. Cancelling a
// completed run returns ErrRunFinished.
func (o *Orchestrator) Cancel(runID string) error {
	o.mu.Lock()
	tr, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return ErrUnknownRun
	}
	if tr.agg.State() == model.RunCompleted {
		return ErrRunFinished
	}
	if tr.cancel != nil {
		tr.cancel()
	}
	return nil
}

// Shutdown cancels every submitted run and waits for them to finish or for
// ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	for _, tr := range o.runs {
		if tr.cancel != nil {
			tr.cancel()
		}
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run returns the current record and aggregate of a run started by this
// orchestrator.
func (o *Orchestrator) Run(runID string) (model.Run, *result.Aggregate, error) {
	o.mu.Lock()
	tr, ok := o.runs[runID]
	o.mu.Unlock()
	if !ok {
		return model.Run{}, nil, ErrUnknownRun
	}
	return runView(tr), tr.agg, nil
}

// Runs returns the records of every run started by this orchestrator,
// newest first.
func (o *Orchestrator) Runs() []model.Run {
	o.mu.Lock()
	out := make([]model.Run, 0, len(o.runs))
	for _, tr := range o.runs {
		out = append(out, runView(tr))
	}
	o.mu.Unlock()

	slices.SortFunc(out, func(a, b model.Run) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out
}

// retire marks a run finished and evicts the oldest finished runs beyond
// RetainRuns, together with their event topics.
func (o *Orchestrator) retire(runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.finished = append(o.finished, runID)
	for len(o.finished) > o.opts.RetainRuns {
		old := o.finished[0]
		o.finished = o.finished[1:]
		delete(o.runs, old)
		o.broker.Forget(old)
		o.logger.Debug("run evicted from memory", "run_id", old)
	}
}

// runView merges a run record with its live aggregate.
func runView(tr *tracked) model.Run {
	r := tr.run
	r.State = tr.agg.State()
	started, finished := tr.agg.Times()
	if !started.IsZero() {
		r.StartedAt = &started
	}
	if !finished.IsZero() {
		r.FinishedAt = &finished
	}
	if r.State != model.RunPending {
		sum := tr.agg.Summary()
		r.Summary = &sum
	}
	return r
}

// prepare registers a pending run.
func (o *Orchestrator) prepare(ctx context.Context, req Request, cancel context.CancelFunc) *tracked {
	r := model.Run{
		ID:          model.NewID(),
		State:       model.RunPending,
		Engines:     o.engineNames(req.Engines),
		Tests:       req.Tests,
		Tags:        req.Tags,
		Concurrency: o.concurrency(req),
		CreatedAt:   time.Now().UTC(),
	}
	tr := &tracked{run: r, agg: result.New(r.ID), cancel: cancel}

	o.mu.Lock()
	o.runs[r.ID] = tr
	o.mu.Unlock()

	if o.opts.Store != nil {
		if err := o.opts.Store.CreateRun(context.WithoutCancel(ctx), &r); err != nil {
			o.logger.Error("failed to persist run", "run_id", r.ID, "error", err)
		}
	}
	return tr
}

func (o *Orchestrator) concurrency(req Request) int {
	n := req.Concurrency
	if n <= 0 {
		n = o.opts.Concurrency
	}
	return max(n, 1)
}

// engineNames resolves requested engine names to canonical names, in
// request order and without duplicates. No request means every available
// engine.
func (o *Orchestrator) engineNames(requested []string) []string {
	if len(requested) == 0 {
		return o.opts.Engines.AvailableNames()
	}
	var names []string
	for _, n := range requested {
		c := browser.Canonical(n)
		if !slices.Contains(names, c) {
			names = append(names, c)
		}
	}
	return names
}

// planned is one unit of the matrix. A unit with a problem is recorded as
// errored without acquiring a session.
type planned struct {
	unit    model.ExecutionUnit
	test    suite.Test
	desc    browser.EngineDescriptor
	problem string
}

// plan expands the request into test x engine units, test major.
func (o *Orchestrator) plan(req Request, engines []string) ([]planned, []string) {
	var diagnostics []string
	descs := make([]browser.EngineDescriptor, len(engines))
	problems := make([]string, len(engines))
	for i, name := range engines {
		d, err := o.opts.Engines.Resolve(name)
		descs[i] = d
		if err != nil {
			problems[i] = err.Error()
			diagnostics = append(diagnostics, err.Error())
		}
	}
	if len(engines) == 0 {
		diagnostics = append(diagnostics, "no browser engines available")
	}

	var patterns, invalid []string
	for _, p := range req.Tests {
		if slices.Contains(patterns, p) || slices.Contains(invalid, p) {
			continue
		}
		if err := suite.CheckPattern(p); err != nil {
			invalid = append(invalid, p)
			continue
		}
		patterns = append(patterns, p)
	}

	var sel suite.Selection
	if len(patterns) > 0 || len(invalid) == 0 {
		// Patterns were checked above, so Select cannot fail.
		sel, _ = o.opts.Catalog.Select(patterns, req.Tags)
	}

	var units []planned
	add := func(testID string, test suite.Test, problem string) {
		for i, name := range engines {
			p := planned{
				unit:    model.NewUnit(testID, name, req.Overrides),
				test:    test,
				desc:    descs[i],
				problem: problem,
			}
			if p.problem == "" {
				p.problem = problems[i]
			}
			units = append(units, p)
		}
	}
	for _, t := range sel.Tests {
		add(t.ID, t, "")
	}
	for _, p := range sel.Missing {
		add(p, suite.Test{ID: p}, "test not found")
	}
	for _, p := range invalid {
		add(p, suite.Test{ID: p}, suite.CheckPattern(p).Error())
	}
	if len(units) == 0 && len(engines) > 0 {
		diagnostics = append(diagnostics, "no tests selected")
	}
	return units, diagnostics
}

// execute runs a prepared run to completion.
func (o *Orchestrator) execute(ctx context.Context, tr *tracked, req Request) {
	runID := tr.run.ID
	agg := tr.agg
	log := o.logger.With("run_id", runID)
	defer o.retire(runID)
	defer o.broker.Close(runID)

	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("run %s", runID))
	defer span.End()

	if err := agg.Start(); err != nil {
		log.Error("failed to start run", "error", err)
	}
	started, _ := agg.Times()
	o.persistState(ctx, runID, model.RunRunning)
	o.broker.Publish(runID, Event{Type: EventState, State: model.RunRunning})

	units, diagnostics := o.plan(req, tr.run.Engines)
	for _, d := range diagnostics {
		agg.AddDiagnostic(d)
	}
	span.SetAttributes(
		attribute.Int("units", len(units)),
		attribute.Int("concurrency", tr.run.Concurrency),
		attribute.StringSlice("engines", tr.run.Engines),
	)
	log.Info("run started", "units", len(units), "engines", tr.run.Engines, "concurrency", tr.run.Concurrency)

	shots := ""
	if o.opts.ResultsDir != "" {
		dir := report.RunDir(o.opts.ResultsDir, runID, started)
		o.mu.Lock()
		tr.dir = dir
		o.mu.Unlock()
		shots = filepath.Join(dir, report.ScreenshotsDir)
	}
	exec := executor.New(executor.Options{
		Timeout:       o.opts.Timeout,
		BaseURL:       o.opts.BaseURL,
		ScreenshotDir: shots,
	}, o.logger)

	rec := &recorder{o: o, runID: runID, agg: agg, log: log}

	// Units that start run to completion even if the run is cancelled.
	unitCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(tr.run.Concurrency)
	for _, p := range units {
		if ctx.Err() != nil {
			rec.record(unitCtx, skipped(p.unit, "run cancelled"))
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				rec.record(unitCtx, skipped(p.unit, "run cancelled"))
				return nil
			}
			o.runUnit(unitCtx, exec, rec, p)
			return nil
		})
	}
	_ = g.Wait()

	if err := agg.Finalize(); err != nil {
		log.Error("failed to finalize run", "error", err)
	}
	o.finish(unitCtx, tr)

	sum := agg.Summary()
	runDuration.Observe(float64(sum.DurationMS) / 1000)
	if agg.HasFailures() {
		span.SetStatus(codes.Error, "run has failures")
	}
	log.Info("run completed",
		"total", sum.Total,
		"passed", sum.ByStatus[model.StatusPassed],
		"failed", sum.ByStatus[model.StatusFailed],
		"errored", sum.ByStatus[model.StatusErrored],
		"timed_out", sum.ByStatus[model.StatusTimedOut],
		"skipped", sum.ByStatus[model.StatusSkipped],
		"duration_ms", sum.DurationMS,
	)
}

// runUnit takes one unit through acquire, run, record and release.
func (o *Orchestrator) runUnit(ctx context.Context, exec *executor.Executor, rec *recorder, p planned) {
	ctx, span := o.tracer.Start(ctx, fmt.Sprintf("unit %s", p.unit.ID), trace.WithAttributes(
		attribute.String("test_id", p.unit.TestID),
		attribute.String("engine", p.unit.Engine),
	))
	defer span.End()

	unitsInFlight.Inc()
	defer unitsInFlight.Dec()

	var (
		out      model.Outcome
		recorded bool
	)
	defer func() {
		span.SetAttributes(attribute.String("status", out.Status))
		if out.IsFailure() {
			span.SetStatus(codes.Error, out.Error)
		}
	}()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		stack := string(debug.Stack())
		rec.log.Error("unit panicked", "unit_id", p.unit.ID, "panic", r)
		if recorded {
			rec.agg.AddDiagnostic(fmt.Sprintf("%s: panic after outcome was recorded: %v", p.unit.ID, r))
			return
		}
		out = errored(p.unit, fmt.Sprintf("panic: %v", r), 0)
		out.Stack = stack
		rec.record(ctx, out)
	}()

	if p.problem != "" {
		out = errored(p.unit, p.problem, 0)
		recorded = true
		rec.record(ctx, out)
		return
	}

	s, err := o.opts.Sessions.Acquire(ctx, p.desc, o.sessionConfig(p.unit.Overrides))
	if err != nil {
		attempts := 0
		var se *session.SessionError
		if errors.As(err, &se) {
			attempts = se.Attempts
		}
		out = errored(p.unit, err.Error(), attempts)
		recorded = true
		rec.record(ctx, out)
		return
	}
	defer o.release(ctx, rec, p.unit.ID, s)

	rec.agg.SetEngineVersion(p.unit.Engine, s.Version())

	out = exec.Run(ctx, p.unit, p.test, s)
	out.Attempts = s.Attempts()
	if out.Status == model.StatusErrored && s.Unusable() == "" {
		// An errored test may have taken the browser down with it.
		if err := o.opts.Sessions.HealthCheck(ctx, s); err != nil {
			out.Notes = append(out.Notes, "session unhealthy after test: "+err.Error())
		}
	}
	recorded = true
	rec.record(ctx, out)
}

// release tears the unit's session down. Teardown problems, panics
// included, become run diagnostics.
func (o *Orchestrator) release(ctx context.Context, rec *recorder, unitID string, s *session.Session) {
	defer func() {
		if r := recover(); r != nil {
			rec.log.Error("session release panicked", "unit_id", unitID, "panic", r)
			rec.agg.AddDiagnostic(fmt.Sprintf("%s: panic releasing session: %v", unitID, r))
		}
	}()
	if err := o.opts.Sessions.Release(ctx, s); err != nil {
		rec.agg.AddDiagnostic(fmt.Sprintf("%s: %v", unitID, err))
	}
}

// sessionConfig applies unit overrides to the default session config.
func (o *Orchestrator) sessionConfig(ov model.Overrides) session.Config {
	cfg := o.opts.Session
	if ov.Headless != nil {
		cfg.Headless = *ov.Headless
	}
	if ov.WindowWidth != nil && *ov.WindowWidth > 0 {
		cfg.Viewport.Width = *ov.WindowWidth
	}
	if ov.WindowHeight != nil && *ov.WindowHeight > 0 {
		cfg.Viewport.Height = *ov.WindowHeight
	}
	if ov.ImplicitWaitS != nil && *ov.ImplicitWaitS >= 0 {
		cfg.ImplicitWait = time.Duration(*ov.ImplicitWaitS) * time.Second
	}
	return cfg
}

// finish writes the report and persists the final run record.
func (o *Orchestrator) finish(ctx context.Context, tr *tracked) {
	runID := tr.run.ID
	if tr.dir != "" {
		path, err := report.Write(tr.dir, tr.agg)
		if err != nil {
			o.logger.Error("failed to write results", "run_id", runID, "error", err)
		} else {
			o.logger.Info("results written", "run_id", runID, "path", path)
		}
	}

	final := runView(tr)
	if o.opts.Store != nil {
		if err := o.opts.Store.UpdateRun(ctx, &final); err != nil {
			o.logger.Error("failed to persist completed run", "run_id", runID, "error", err)
		}
	}
	o.broker.Publish(runID, Event{Type: EventSummary, Summary: final.Summary})
	o.broker.Publish(runID, Event{Type: EventState, State: model.RunCompleted})
}

// ResultsDir returns the results directory of a run, or "" when reports are
// disabled or the run has not started.
func (o *Orchestrator) ResultsDir(runID string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if tr, ok := o.runs[runID]; ok {
		return tr.dir
	}
	return ""
}

func (o *Orchestrator) persistState(ctx context.Context, runID, state string) {
	if o.opts.Store == nil {
		return
	}
	if err := o.opts.Store.UpdateRunState(context.WithoutCancel(ctx), runID, state); err != nil {
		o.logger.Error("failed to persist run state", "run_id", runID, "state", state, "error", err)
	}
}

// recorder serializes outcome recording for a run so that the aggregate,
// the store sequence and the event stream agree on completion order.
type recorder struct {
	o     *Orchestrator
	runID string
	agg   *result.Aggregate
	log   *slog.Logger

	mu  sync.Mutex
	seq int
}

func (r *recorder) record(ctx context.Context, out model.Outcome) {
	r.mu.Lock()
	if err := r.agg.Record(out); err != nil {
		r.mu.Unlock()
		r.log.Error("failed to record outcome", "unit_id", out.UnitID, "error", err)
		return
	}
	seq := r.seq
	r.seq++
	r.o.broker.Publish(r.runID, Event{Type: EventOutcome, Outcome: &out})
	r.mu.Unlock()

	outcomesTotal.WithLabelValues(out.Engine, out.Status).Inc()
	unitDuration.WithLabelValues(out.Engine).Observe(out.Duration().Seconds())

	if r.o.opts.Store != nil {
		if err := r.o.opts.Store.InsertOutcome(ctx, r.runID, seq, out); err != nil {
			r.log.Error("failed to persist outcome", "unit_id", out.UnitID, "seq", seq, "error", err)
		}
	}
}

func errored(u model.ExecutionUnit, msg string, attempts int) model.Outcome {
	now := time.Now()
	return model.Outcome{
		UnitID:     u.ID,
		TestID:     u.TestID,
		Engine:     u.Engine,
		Status:     model.StatusErrored,
		Error:      msg,
		Attempts:   attempts,
		StartedAt:  now,
		FinishedAt: now,
	}
}

func skipped(u model.ExecutionUnit, reason string) model.Outcome {
	out := errored(u, reason, 0)
	out.Status = model.StatusSkipped
	return out
}
