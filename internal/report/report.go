// Package report turns a finalized run into its on-disk results directory
// and a console summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/result"
)

// Names inside a run directory.
const (
	ResultsFile    = "results.json"
	ScreenshotsDir = "screenshots"
)

// Results is the document written to results.json.
type Results struct {
	RunID           string            `json:"run_id"`
	State           string            `json:"state"`
	StartedAt       time.Time         `json:"started_at"`
	FinishedAt      time.Time         `json:"finished_at"`
	Summary         model.Summary     `json:"summary"`
	BrowserVersions map[string]string `json:"browser_versions"`
	Outcomes        []model.Outcome   `json:"results"`
	Diagnostics     []string          `json:"diagnostics,omitempty"`
}

// FromAggregate captures agg as a Results document.
func FromAggregate(agg *result.Aggregate) Results {
	started, finished := agg.Times()
	outcomes := agg.Outcomes()
	if outcomes == nil {
		outcomes = []model.Outcome{}
	}
	return Results{
		RunID:           agg.RunID,
		State:           agg.State(),
		StartedAt:       started,
		FinishedAt:      finished,
		Summary:         agg.Summary(),
		BrowserVersions: agg.EngineVersions(),
		Outcomes:        outcomes,
		Diagnostics:     agg.Diagnostics(),
	}
}

// RunDirName names the directory of a run started at the given time, e.g.
// run_20250101_120000_01JG....
func RunDirName(runID string, started time.Time) string {
	return fmt.Sprintf("run_%s_%s", started.UTC().Format("20060102_150405"), runID)
}

// RunDir returns the directory of a run under root.
func RunDir(root, runID string, started time.Time) string {
	return filepath.Join(root, RunDirName(runID, started))
}

// Write writes results.json for agg into dir, creating dir if needed, and
// returns the file path. The file is written atomically.
func Write(dir string, agg *result.Aggregate) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}

	data, err := json.MarshalIndent(FromAggregate(agg), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}

	path := filepath.Join(dir, ResultsFile)
	tmp, err := os.CreateTemp(dir, ResultsFile+".*")
	if err != nil {
		return "", fmt.Errorf("create results file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close results file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("rename results file: %w", err)
	}
	return path, nil
}

// Load reads a results.json written by Write.
func Load(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	var r Results
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return &r, nil
}
