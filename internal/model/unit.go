package model

import "time"

// Overrides adjusts the run configuration for the units of one request.
// Nil fields keep the configured default.
type Overrides struct {
	Headless      *bool `json:"headless,omitempty"`
	TimeoutS      *int  `json:"timeout_s,omitempty"`
	WindowWidth   *int  `json:"window_width,omitempty"`
	WindowHeight  *int  `json:"window_height,omitempty"`
	ImplicitWaitS *int  `json:"implicit_wait_s,omitempty"`
}

// ExecutionUnit pairs one test with one engine. It is the smallest
// schedulable item and is immutable once the matrix is expanded.
type ExecutionUnit struct {
	ID        string    `json:"id"`
	TestID    string    `json:"test_id"`
	Engine    string    `json:"engine"`
	Overrides Overrides `json:"overrides"`
}

// NewUnit builds the execution unit for testID on engine.
func NewUnit(testID, engine string, o Overrides) ExecutionUnit {
	return ExecutionUnit{
		ID:        UnitID(testID, engine),
		TestID:    testID,
		Engine:    engine,
		Overrides: o,
	}
}

// Timeout returns the per-test timeout for the unit, falling back to def.
func (u ExecutionUnit) Timeout(def time.Duration) time.Duration {
	if u.Overrides.TimeoutS != nil && *u.Overrides.TimeoutS > 0 {
		return time.Duration(*u.Overrides.TimeoutS) * time.Second
	}
	return def
}

// Outcome is the terminal result of one execution unit. It is written once
// into the run's aggregate and never mutated afterward.
type Outcome struct {
	UnitID     string    `json:"unit_id"`
	TestID     string    `json:"test_id"`
	Engine     string    `json:"engine"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Stack      string    `json:"stack,omitempty"`
	Artifacts  []string  `json:"artifacts,omitempty"`
	Notes      []string  `json:"notes,omitempty"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the outcome duration.
func (o Outcome) Duration() time.Duration {
	return time.Duration(o.DurationMS) * time.Millisecond
}

// IsFailure reports whether the outcome counts against the run.
func (o Outcome) IsFailure() bool {
	return IsFailureStatus(o.Status)
}

// EngineCounts holds per-status counts for a single engine.
type EngineCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
}

// Summary holds the order-independent counters of a run.
type Summary struct {
	Total      int                     `json:"total"`
	ByStatus   map[string]int          `json:"by_status"`
	ByEngine   map[string]EngineCounts `json:"by_engine"`
	PassRate   float64                 `json:"pass_rate"`
	DurationMS int64                   `json:"duration_ms"`
}

// Run is the persisted record of one orchestrator execution.
type Run struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Engines     []string   `json:"engines"`
	Tests       []string   `json:"tests"`
	Tags        []string   `json:"tags,omitempty"`
	Concurrency int        `json:"concurrency"`
	Summary     *Summary   `json:"summary,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}
