// Package executor runs a single test body against an acquired browser
// session and turns whatever happens into exactly one outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/suite"
)

// DefaultTimeout is the per-test timeout when neither the test nor the run
// sets one.
const DefaultTimeout = 30 * time.Second

// captureTimeout bounds a failure screenshot.
const captureTimeout = 10 * time.Second

// Session is the part of a browser session the executor needs.
type Session interface {
	Page() browser.Page
	MarkBusy() error
	MarkIdle() error
	MarkUnusable(reason string)
	Capture(ctx context.Context, path string) error
}

// Options configures an Executor.
type Options struct {
	// Timeout is the default per-test timeout.
	Timeout time.Duration

	// BaseURL is handed to test bodies through suite.Env.
	BaseURL string

	// ScreenshotDir receives failure screenshots. Empty disables capture.
	ScreenshotDir string
}

// Executor runs test bodies. It never retries a body.
type Executor struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates an executor.
func New(opts Options, logger *slog.Logger) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Executor{
		opts:   opts,
		logger: logger.With("component", "executor"),
		now:    time.Now,
	}
}

// PanicError is the error recorded when a test body panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Run executes test against s and returns its outcome. The per-test
// timeout is taken from the unit overrides, then the test, then the
// executor default. A body that outlives its timeout is abandoned and the
// session is flagged for forced teardown.
func (e *Executor) Run(ctx context.Context, unit model.ExecutionUnit, test suite.Test, s Session) model.Outcome {
	def := e.opts.Timeout
	if test.Timeout > 0 {
		def = test.Timeout
	}
	timeout := unit.Timeout(def)

	started := e.now()
	out := model.Outcome{
		UnitID:    unit.ID,
		TestID:    unit.TestID,
		Engine:    unit.Engine,
		StartedAt: started,
	}
	log := e.logger.With("unit_id", unit.ID)

	if err := s.MarkBusy(); err != nil {
		out.Status = model.StatusErrored
		out.Error = clean(err.Error())
		out.FinishedAt = e.now()
		return out
	}

	env := &suite.Env{
		Browser: s.Page(),
		BaseURL: e.opts.BaseURL,
		Engine:  unit.Engine,
		Logger:  log,
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
		done <- test.Func(tctx, env)
	}()

	var err error
	timedOut := false
	select {
	case err = <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			timedOut = true
		}
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			timedOut = true
		} else {
			err = tctx.Err()
		}
	}

	finished := e.now()
	out.FinishedAt = finished
	out.DurationMS = finished.Sub(started).Milliseconds()

	switch {
	case timedOut:
		out.Status = model.StatusTimedOut
		out.Error = fmt.Sprintf("test exceeded timeout of %s", timeout)
		out.DurationMS = min(out.DurationMS, timeout.Milliseconds())
		s.MarkUnusable("test timed out")
	case err == nil:
		out.Status = model.StatusPassed
	default:
		classify(&out, err)
		if errors.Is(err, browser.ErrSessionLost) {
			s.MarkUnusable("browser lost")
			out.Notes = append(out.Notes, "browser session lost during test")
		}
	}

	if !timedOut {
		if err := s.MarkIdle(); err != nil {
			log.Debug("session not returned to ready", "error", err)
		}
	}

	if out.IsFailure() {
		e.capture(ctx, log, &out, s, err)
	}

	log.Info("unit finished", "status", out.Status, "duration_ms", out.DurationMS)
	return out
}

// classify maps a non-nil, non-timeout error onto a status.
func classify(out *model.Outcome, err error) {
	var ae *suite.AssertionError
	var pe *PanicError
	switch {
	case errors.As(err, &ae):
		out.Status = model.StatusFailed
		out.Error = clean(ae.Message)
	case errors.Is(err, suite.ErrSkipped):
		out.Status = model.StatusSkipped
		out.Error = clean(err.Error())
	case errors.As(err, &pe):
		out.Status = model.StatusErrored
		out.Error = clean(pe.Error())
		out.Stack = clean(string(pe.Stack))
	default:
		out.Status = model.StatusErrored
		out.Error = clean(err.Error())
	}
}

// capture takes a failure screenshot. Failures become notes on the outcome.
func (e *Executor) capture(ctx context.Context, log *slog.Logger, out *model.Outcome, s Session, cause error) {
	if e.opts.ScreenshotDir == "" {
		return
	}
	if errors.Is(cause, browser.ErrSessionLost) {
		out.Notes = append(out.Notes, "screenshot skipped: browser lost")
		return
	}
	if err := os.MkdirAll(e.opts.ScreenshotDir, 0o755); err != nil {
		out.Notes = append(out.Notes, "screenshot failed: "+clean(err.Error()))
		return
	}

	path := filepath.Join(e.opts.ScreenshotDir, ScreenshotName(out.UnitID, out.StartedAt))
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.Capture(cctx, path) }()

	var err error
	select {
	case err = <-errc:
	case <-cctx.Done():
		err = fmt.Errorf("timed out after %s", captureTimeout)
	}
	if err != nil {
		log.Warn("failure screenshot not captured", "error", err)
		out.Notes = append(out.Notes, "screenshot failed: "+clean(err.Error()))
		return
	}
	out.Artifacts = append(out.Artifacts, path)
}

var nameReplacer = strings.NewReplacer("/", "_", "@", "_", "\\", "_", ":", "_", " ", "_")

// ScreenshotName names a failure screenshot after the unit and the time it
// started, e.g. login_successful_chrome_20250101_120000.png.
func ScreenshotName(unitID string, at time.Time) string {
	return nameReplacer.Replace(unitID) + "_" + at.UTC().Format("20060102_150405") + ".png"
}

func clean(s string) string {
	return strings.TrimSpace(stripansi.Strip(s))
}
