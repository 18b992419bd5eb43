package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/orchestrator"
	"github.com/seantiz/xbrowse/internal/suite"
)

type sseEvent struct {
	name string
	data string
}

// readEvents parses an SSE body until EOF.
func readEvents(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func names(events []sseEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.name
	}
	return out
}

func streamEvents(t *testing.T, url string) (*http.Response, func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, func() {
		resp.Body.Close()
		cancel()
	}
}

func TestRunEventsNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/nonexistent/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEventsStoredRun(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	run := &model.Run{ID: model.NewID(), State: model.RunPending, CreatedAt: time.Now().UTC()}
	require.NoError(t, srv.store.CreateRun(ctx, run))
	require.NoError(t, srv.store.UpdateRunState(ctx, run.ID, model.RunRunning))
	require.NoError(t, srv.store.UpdateRunState(ctx, run.ID, model.RunCompleted))

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, done := streamEvents(t, ts.URL+"/v1/runs/"+run.ID+"/events")
	defer done()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, []sseEvent{{name: "done", data: model.RunCompleted}}, readEvents(t, resp.Body))
}

func TestRunEventsReplayFinishedRun(t *testing.T) {
	srv := newTestServer(t)
	run, err := srv.orch.Submit(context.Background(), orchestrator.Request{Tests: []string{"login/ok"}})
	require.NoError(t, err)
	srv.orch.Wait()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, done := streamEvents(t, ts.URL+"/v1/runs/"+run.ID+"/events")
	defer done()

	events := readEvents(t, resp.Body)
	require.Equal(t, []string{"state", "outcome", "summary", "state", "done"}, names(events))

	var ev orchestrator.Event
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &ev))
	require.NotNil(t, ev.Outcome)
	assert.Equal(t, "login/ok@chrome", ev.Outcome.UnitID)
	assert.Equal(t, model.StatusPassed, ev.Outcome.Status)
	assert.Equal(t, run.ID, ev.RunID)
}

func TestRunEventsEvictedRun(t *testing.T) {
	srv := newTestServerWith(t, func(o *orchestrator.Options) { o.RetainRuns = 1 })
	ctx := context.Background()

	first, err := srv.orch.Submit(ctx, orchestrator.Request{Tests: []string{"login/ok"}})
	require.NoError(t, err)
	srv.orch.Wait()
	_, err = srv.orch.Submit(ctx, orchestrator.Request{Tests: []string{"login/ok"}})
	require.NoError(t, err)
	srv.orch.Wait()

	_, _, err = srv.orch.Run(first.ID)
	require.ErrorIs(t, err, orchestrator.ErrUnknownRun)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, done := streamEvents(t, ts.URL+"/v1/runs/"+first.ID+"/events")
	defer done()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []sseEvent{{name: "done", data: model.RunCompleted}}, readEvents(t, resp.Body))
}

func TestRunEventsLiveStream(t *testing.T) {
	gate := make(chan struct{})
	srv := newTestServer(t, suite.Test{ID: "gate/open", Func: func(ctx context.Context, _ *suite.Env) error {
		select {
		case <-gate:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	run, err := srv.orch.Submit(context.Background(), orchestrator.Request{Tests: []string{"gate/*"}})
	require.NoError(t, err)

	resp, done := streamEvents(t, ts.URL+"/v1/runs/"+run.ID+"/events")
	defer done()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	close(gate)

	events := readEvents(t, resp.Body)
	require.Equal(t, []string{"state", "outcome", "summary", "state", "done"}, names(events))

	var last orchestrator.Event
	require.NoError(t, json.Unmarshal([]byte(events[3].data), &last))
	assert.Equal(t, model.RunCompleted, last.State)
}

func TestEventStreamMetrics(t *testing.T) {
	srv := newTestServer(t)
	run, err := srv.orch.Submit(context.Background(), orchestrator.Request{Tests: []string{"login/ok"}})
	require.NoError(t, err)
	srv.orch.Wait()

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, done := streamEvents(t, ts.URL+"/v1/runs/"+run.ID+"/events")
	readEvents(t, resp.Body)
	done()
	assert.Zero(t, testutil.ToFloat64(eventStreamsOpen), "stream gauge drops when the stream ends")

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)

	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, "xbrowse_http_request_duration_seconds") {
			assert.NotContains(t, line, eventsRoute, "event streams stay out of the latency histogram")
		}
	}
	assert.Contains(t, string(body), `xbrowse_http_requests_total{code="200",method="GET",route="/v1/runs/{id}/events"}`)
}
