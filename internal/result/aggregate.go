// Package result collects the outcomes of one run. An Aggregate is owned by
// a single run and accepts concurrent writes from its workers.
package result

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/seantiz/xbrowse/internal/model"
)

var (
	// ErrDuplicateOutcome is returned when a unit's outcome is recorded twice.
	ErrDuplicateOutcome = errors.New("outcome already recorded")

	// ErrFinalized is returned for writes after Finalize.
	ErrFinalized = errors.New("aggregate finalized")

	// ErrNotStarted is returned when recording into a run that has not
	// started.
	ErrNotStarted = errors.New("run not started")
)

// Aggregate is the collection of outcomes for a run.
type Aggregate struct {
	RunID string

	mu          sync.Mutex
	state       string
	outcomes    []model.Outcome
	seen        map[string]struct{}
	versions    map[string]string
	diagnostics []string
	startedAt   time.Time
	finishedAt  time.Time
	now         func() time.Time
}

// New creates an empty aggregate in the pending state.
func New(runID string) *Aggregate {
	return &Aggregate{
		RunID:    runID,
		state:    model.RunPending,
		seen:     make(map[string]struct{}),
		versions: make(map[string]string),
		now:      time.Now,
	}
}

// Start moves the run from pending to running.
func (a *Aggregate) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startLocked()
}

func (a *Aggregate) startLocked() error {
	if !model.ValidRunTransition(a.state, model.RunRunning) {
		if a.state == model.RunCompleted {
			return ErrFinalized
		}
		return fmt.Errorf("start run in state %s", a.state)
	}
	a.state = model.RunRunning
	a.startedAt = a.now().UTC()
	return nil
}

// Record appends o in completion order.
func (a *Aggregate) Record(o model.Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case model.RunCompleted:
		return fmt.Errorf("record %s: %w", o.UnitID, ErrFinalized)
	case model.RunPending:
		return fmt.Errorf("record %s: %w", o.UnitID, ErrNotStarted)
	}
	if _, dup := a.seen[o.UnitID]; dup {
		return fmt.Errorf("record %s: %w", o.UnitID, ErrDuplicateOutcome)
	}
	a.seen[o.UnitID] = struct{}{}
	a.outcomes = append(a.outcomes, o)
	return nil
}

// Finalize closes the run. No outcome can be recorded afterward. A run that
// never started is started and completed in one step.
func (a *Aggregate) Finalize() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == model.RunPending {
		if err := a.startLocked(); err != nil {
			return err
		}
	}
	if a.state == model.RunCompleted {
		return ErrFinalized
	}
	a.state = model.RunCompleted
	a.finishedAt = a.now().UTC()
	return nil
}

// State returns the run state.
func (a *Aggregate) State() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Outcomes returns a copy of the recorded outcomes in completion order.
func (a *Aggregate) Outcomes() []model.Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]model.Outcome, len(a.outcomes))
	copy(out, a.outcomes)
	return out
}

// Len returns the number of recorded outcomes.
func (a *Aggregate) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.outcomes)
}

// Times returns when the run started and finished. Zero values mean the
// transition has not happened.
func (a *Aggregate) Times() (started, finished time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startedAt, a.finishedAt
}

// HasFailures reports whether any outcome is failed, errored or timed out.
func (a *Aggregate) HasFailures() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.outcomes {
		if o.IsFailure() {
			return true
		}
	}
	return false
}

// Summary computes the run's counters. The duration is the run's wall time,
// measured up to now while the run is still going.
func (a *Aggregate) Summary() model.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := model.Summary{
		Total:    len(a.outcomes),
		ByStatus: make(map[string]int, len(model.Statuses)),
		ByEngine: make(map[string]model.EngineCounts),
	}
	for _, st := range model.Statuses {
		s.ByStatus[st] = 0
	}
	for _, o := range a.outcomes {
		s.ByStatus[o.Status]++
		ec, ok := s.ByEngine[o.Engine]
		if !ok {
			ec.ByStatus = make(map[string]int)
		}
		ec.Total++
		ec.ByStatus[o.Status]++
		s.ByEngine[o.Engine] = ec
	}
	if s.Total > 0 {
		s.PassRate = float64(s.ByStatus[model.StatusPassed]) / float64(s.Total) * 100
	}

	switch {
	case a.startedAt.IsZero():
	case a.finishedAt.IsZero():
		s.DurationMS = a.now().Sub(a.startedAt).Milliseconds()
	default:
		s.DurationMS = a.finishedAt.Sub(a.startedAt).Milliseconds()
	}
	return s
}

// SetEngineVersion records the version reported by an engine's browser. The
// first version seen for an engine wins.
func (a *Aggregate) SetEngineVersion(engine, version string) {
	if version == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.versions[engine]; !ok {
		a.versions[engine] = version
	}
}

// EngineVersions returns a copy of the collected engine versions.
func (a *Aggregate) EngineVersions() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.versions)
}

// AddDiagnostic records a run-level message that belongs to no single
// outcome, such as a teardown warning after the outcome was recorded.
func (a *Aggregate) AddDiagnostic(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diagnostics = append(a.diagnostics, msg)
}

// Diagnostics returns a copy of the run-level messages.
func (a *Aggregate) Diagnostics() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.diagnostics...)
}
