package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/xbrowse/internal/orchestrator"
	"github.com/seantiz/xbrowse/internal/store"
)

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// History and channel are taken atomically, so no event is seen twice.
	// A finished run yields its full history and a closed channel.
	history, ch, unsub, err := s.orch.Subscribe(id)
	if errors.Is(err, orchestrator.ErrUnknownRun) {
		// Runs from an earlier process, or evicted from memory, have no
		// live stream; report the stored state and end.
		run, err := s.store.GetRun(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			s.logger.Error("get run for events", "run_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to get run")
			return
		}
		setSSEHeaders(w)
		w.WriteHeader(http.StatusOK)
		_ = writeSSEEvent(w, "done", run.State)
		return
	}
	defer unsub()

	eventStreamsOpen.Inc()
	defer eventStreamsOpen.Dec()

	setSSEHeaders(w)

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	for _, ev := range history {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	if canFlush {
		flusher.Flush()
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				_ = writeSSEEvent(w, "done", "stream complete")
				if canFlush {
					flusher.Flush()
				}
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			if canFlush {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

// writeEvent writes a run event as a typed SSE event with a JSON payload.
func writeEvent(w http.ResponseWriter, ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\n", ev.Seq); err != nil {
		return err
	}
	return writeSSEEvent(w, ev.Type, string(data))
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
