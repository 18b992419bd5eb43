package e2e

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/xbrowse/internal/api"
	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/browser/stub"
	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/orchestrator"
	"github.com/seantiz/xbrowse/internal/report"
	"github.com/seantiz/xbrowse/internal/retry"
	"github.com/seantiz/xbrowse/internal/session"
	"github.com/seantiz/xbrowse/internal/store"
	"github.com/seantiz/xbrowse/internal/suite"
	"github.com/seantiz/xbrowse/internal/suites/demo"
)

// stack is the full service wired over the stub driver and the demo suite.
type stack struct {
	ts   *httptest.Server
	orch *orchestrator.Orchestrator
	drv  *stub.Driver
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	drv := &stub.Driver{
		Pages:    demo.Pages(),
		Versions: map[string]string{model.EngineChrome: "131.0.6778.33", model.EngineFirefox: "132.0"},
	}
	engines := append(stub.Available(model.EngineChrome, model.EngineFirefox), stub.Missing(model.EngineWebKit))

	cat := suite.NewCatalog()
	require.NoError(t, cat.Register(demo.Tests(20*time.Millisecond)...))

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	orch := orchestrator.New(orchestrator.Options{
		Catalog:  cat,
		Engines:  browser.NewSnapshot(engines...),
		Sessions: session.NewManager(drv, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, logger),
		Store:    db,
		Session: session.Config{
			Headless: true,
			Viewport: browser.Viewport{Width: 1280, Height: 720},
		},
		Timeout:     5 * time.Second,
		BaseURL:     demo.BaseURL,
		ResultsDir:  t.TempDir(),
		Concurrency: 4,
	}, logger)

	ts := httptest.NewServer(api.NewServer(":0", db, orch, logger).Router())
	t.Cleanup(func() {
		ts.Close()
		orch.Wait()
	})
	return &stack{ts: ts, orch: orch, drv: drv}
}

func (s *stack) submit(t *testing.T, body string) model.Run {
	t.Helper()
	resp, err := http.Post(s.ts.URL+"/v1/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var run model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	return run
}

// events reads the run's event stream to the end.
func (s *stack) events(t *testing.T, runID string) []orchestrator.Event {
	t.Helper()
	resp, err := http.Get(s.ts.URL + "/v1/runs/" + runID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []orchestrator.Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			event = name
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && event != "done" {
			var ev orchestrator.Event
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			out = append(out, ev)
		}
	}
	return out
}

func TestFullMatrixRun(t *testing.T) {
	s := newStack(t)
	run := s.submit(t, `{"engines":["chrome","firefox","safari"],"concurrency":3}`)
	assert.Equal(t, []string{"chrome", "firefox", "webkit"}, run.Engines, "safari resolves to webkit")

	events := s.events(t, run.ID)
	require.NotEmpty(t, events)
	assert.Equal(t, orchestrator.EventState, events[0].Type)
	assert.Equal(t, model.RunRunning, events[0].State)
	last := events[len(events)-1]
	assert.Equal(t, model.RunCompleted, last.State)

	outcomes := 0
	for i, ev := range events {
		assert.Equal(t, i, ev.Seq)
		if ev.Type == orchestrator.EventOutcome {
			outcomes++
		}
	}
	assert.Equal(t, 18, outcomes, "6 tests x 3 engines")

	var detail struct {
		model.Run
		Results    []model.Outcome `json:"results"`
		ResultsDir string          `json:"results_dir"`
	}
	resp, err := http.Get(s.ts.URL + "/v1/runs/" + run.ID)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))
	resp.Body.Close()

	require.NotNil(t, detail.Summary)
	sum := detail.Summary
	assert.Equal(t, 18, sum.Total)
	assert.Equal(t, 8, sum.ByStatus[model.StatusPassed], "4 passing tests on 2 engines")
	assert.Equal(t, 2, sum.ByStatus[model.StatusFailed])
	assert.Equal(t, 2, sum.ByStatus[model.StatusSkipped])
	assert.Equal(t, 6, sum.ByStatus[model.StatusErrored], "webkit is not installed")
	assert.Equal(t, 6, sum.ByEngine[model.EngineWebKit].ByStatus[model.StatusErrored])

	seen := map[string]bool{}
	for _, o := range detail.Results {
		assert.False(t, seen[o.UnitID], "duplicate outcome %s", o.UnitID)
		seen[o.UnitID] = true
		if o.Status == model.StatusFailed {
			require.Len(t, o.Artifacts, 1, o.UnitID)
			_, err := os.Stat(o.Artifacts[0])
			assert.NoError(t, err, "screenshot exists")
		}
	}
	assert.Zero(t, s.drv.Live(), "every session released")

	res, err := report.Load(filepath.Join(detail.ResultsDir, report.ResultsFile))
	require.NoError(t, err)
	assert.Equal(t, run.ID, res.RunID)
	assert.Len(t, res.Outcomes, 18)
	assert.Equal(t, "131.0.6778.33", res.BrowserVersions[model.EngineChrome])
	assert.NotEmpty(t, res.Diagnostics)
}

func TestSelectionByTagAndPattern(t *testing.T) {
	s := newStack(t)
	run := s.submit(t, `{"engines":["chrome"],"tests":["home/*"],"tags":["smoke"]}`)
	s.orch.Wait()

	resp, err := http.Get(s.ts.URL + "/v1/runs/" + run.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var detail struct {
		Results []model.Outcome `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&detail))

	var ids []string
	for _, o := range detail.Results {
		ids = append(ids, o.UnitID)
		assert.Equal(t, model.StatusPassed, o.Status)
	}
	assert.ElementsMatch(t, []string{"home/title@chrome", "home/banner@chrome"}, ids)
}

func TestRunsListedAfterCompletion(t *testing.T) {
	s := newStack(t)
	first := s.submit(t, `{"engines":["chrome"],"tests":["home/title"]}`)
	s.orch.Wait()
	second := s.submit(t, `{"engines":["firefox"],"tests":["home/title"]}`)
	s.orch.Wait()

	resp, err := http.Get(s.ts.URL + "/v1/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list struct {
		Runs  []model.Run `json:"runs"`
		Total int         `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, 2, list.Total)
	assert.ElementsMatch(t, []string{first.ID, second.ID}, []string{list.Runs[0].ID, list.Runs[1].ID})
	for _, r := range list.Runs {
		assert.Equal(t, model.RunCompleted, r.State)
		require.NotNil(t, r.Summary)
		assert.Equal(t, 100.0, r.Summary.PassRate)
	}
}
