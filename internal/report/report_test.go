package report_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/report"
	"github.com/seantiz/xbrowse/internal/result"
)

func finishedRun(t *testing.T) *result.Aggregate {
	t.Helper()
	agg := result.New("01JRUN")
	require.NoError(t, agg.Start())
	agg.SetEngineVersion("chrome", "131.0.6778.33")
	for _, o := range []model.Outcome{
		{UnitID: "login/ok@chrome", TestID: "login/ok", Engine: "chrome", Status: model.StatusPassed, DurationMS: 1200},
		{
			UnitID: "cart/add@chrome", TestID: "cart/add", Engine: "chrome", Status: model.StatusFailed,
			DurationMS: 800, Error: "cart count: got 0, want 1",
			Artifacts: []string{"/results/run/screenshots/cart_add_chrome.png"},
		},
		{UnitID: "login/ok@firefox", TestID: "login/ok", Engine: "firefox", Status: model.StatusErrored, Error: "engine unavailable"},
	} {
		require.NoError(t, agg.Record(o))
	}
	agg.AddDiagnostic("chrome session needed a forced teardown")
	require.NoError(t, agg.Finalize())
	return agg
}

func TestRunDirName(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 5, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "run_20250601_073005_01JRUN", report.RunDirName("01JRUN", at))
	assert.Equal(t, filepath.Join("out", "run_20250601_073005_01JRUN"), report.RunDir("out", "01JRUN", at))
}

func TestWriteAndLoad(t *testing.T) {
	agg := finishedRun(t)
	dir := filepath.Join(t.TempDir(), "run")

	path, err := report.Write(dir, agg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, report.ResultsFile), path)

	got, err := report.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "01JRUN", got.RunID)
	assert.Equal(t, model.RunCompleted, got.State)
	assert.Equal(t, 3, got.Summary.Total)
	assert.Equal(t, 1, got.Summary.ByStatus[model.StatusFailed])
	assert.Equal(t, "131.0.6778.33", got.BrowserVersions["chrome"])
	require.Len(t, got.Outcomes, 3)
	assert.Equal(t, "cart/add@chrome", got.Outcomes[1].UnitID)
	assert.Equal(t, []string{"chrome session needed a forced teardown"}, got.Diagnostics)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWriteEmptyRunHasEmptyResults(t *testing.T) {
	agg := result.New("empty")
	require.NoError(t, agg.Finalize())

	path, err := report.Write(t.TempDir(), agg)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"results": []`)
}

func TestWriteFailsOnFileAsDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	_, err := report.Write(file, finishedRun(t))
	assert.Error(t, err)
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	report.Print(&buf, report.FromAggregate(finishedRun(t)), false)
	out := buf.String()

	assert.Contains(t, out, "Run 01JRUN")
	assert.Contains(t, out, "131.0.6778.33")
	assert.Contains(t, out, "cart/add@chrome")
	assert.Contains(t, out, "cart count: got 0, want 1")
	assert.Contains(t, out, "/results/run/screenshots/cart_add_chrome.png")
	assert.Contains(t, out, "login/ok@firefox")
	assert.NotContains(t, out, "login/ok@chrome", "passing units are not listed")
	assert.Contains(t, out, "Pass rate: 33.3% (1/3)")
	assert.Contains(t, out, "warning: chrome session needed a forced teardown")
}

func TestPrintAllPassedHasNoFailureTable(t *testing.T) {
	agg := result.New("ok")
	require.NoError(t, agg.Start())
	require.NoError(t, agg.Record(model.Outcome{UnitID: "a@chrome", Engine: "chrome", Status: model.StatusPassed}))
	require.NoError(t, agg.Finalize())

	var buf bytes.Buffer
	report.Print(&buf, report.FromAggregate(agg), false)
	assert.NotContains(t, buf.String(), "Not passed")
	assert.Contains(t, buf.String(), "Pass rate: 100.0% (1/1)")
}

func TestPrintEngines(t *testing.T) {
	var buf bytes.Buffer
	report.PrintEngines(&buf, []browser.EngineDescriptor{
		{Name: "chrome", Family: "chromium", Available: true, Source: browser.SourceSystem, ExecutablePath: "/usr/bin/google-chrome"},
		{Name: "webkit", Family: "webkit", Reason: "driver-managed webkit build not installed"},
	})
	out := buf.String()

	assert.Contains(t, out, "Browser engines")
	assert.Contains(t, out, "/usr/bin/google-chrome")
	assert.Contains(t, out, "unavailable")
	assert.Contains(t, out, "driver-managed webkit build not installed")
}
