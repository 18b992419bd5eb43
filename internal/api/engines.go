package api

import (
	"net/http"

	"github.com/seantiz/xbrowse/internal/browser"
)

// testInfo is one catalog entry in GET /v1/tests.
type testInfo struct {
	ID          string   `json:"id"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
	TimeoutS    float64  `json:"timeout_s,omitempty"`
}

func (s *Server) handleListEngines(w http.ResponseWriter, _ *http.Request) {
	engines := s.orch.Engines().All()
	if engines == nil {
		engines = []browser.EngineDescriptor{}
	}
	s.writeJSON(w, http.StatusOK, engines)
}

func (s *Server) handleListTests(w http.ResponseWriter, _ *http.Request) {
	all := s.orch.Catalog().All()
	tests := make([]testInfo, len(all))
	for i, t := range all {
		tests[i] = testInfo{
			ID:          t.ID,
			Tags:        t.Tags,
			Description: t.Description,
			TimeoutS:    t.Timeout.Seconds(),
		}
	}
	s.writeJSON(w, http.StatusOK, tests)
}
