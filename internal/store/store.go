package store

import (
	"context"
	"errors"

	"github.com/seantiz/xbrowse/internal/model"
)

// ErrInvalidTransition is returned when a run state transition is not allowed.
var ErrInvalidTransition = errors.New("invalid state transition")

// RunStats holds aggregate statistics across all stored runs.
type RunStats struct {
	Runs             int            `json:"runs"`
	CountByState     map[string]int `json:"count_by_state"`
	Outcomes         int            `json:"outcomes"`
	CountByStatus    map[string]int `json:"count_by_status"`
	CountByEngine    map[string]int `json:"count_by_engine"`
	AvgUnitDuration  float64        `json:"avg_unit_duration_ms"`
	FailuresByEngine map[string]int `json:"failures_by_engine"`
}

// Store defines the persistence operations for runs and their outcomes.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunState(ctx context.Context, id, state string) error
	UpdateRun(ctx context.Context, r *model.Run) error
	InsertOutcome(ctx context.Context, runID string, seq int, o model.Outcome) error
	GetOutcomes(ctx context.Context, runID string) ([]model.Outcome, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
	Close() error
}
