// testserver starts an xbrowse API server backed by the stub browser driver
// and the demo suite, for end-to-end testing without installed browsers.
// Usage: go run ./cmd/testserver
package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/seantiz/xbrowse/internal/api"
	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/browser/stub"
	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/orchestrator"
	"github.com/seantiz/xbrowse/internal/retry"
	"github.com/seantiz/xbrowse/internal/session"
	"github.com/seantiz/xbrowse/internal/store"
	"github.com/seantiz/xbrowse/internal/suite"
	"github.com/seantiz/xbrowse/internal/suites/demo"
)

func main() {
	addr := ":8080"
	if v := os.Getenv("XBROWSE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	drv := &stub.Driver{
		Pages: demo.Pages(),
		Versions: map[string]string{
			model.EngineChrome:  "131.0.6778.33",
			model.EngineFirefox: "132.0",
		},
	}
	engines := append(stub.Available(model.EngineChrome, model.EngineFirefox), stub.Missing(model.EngineWebKit))

	cat := suite.NewCatalog()
	cat.MustRegister(demo.Tests(500 * time.Millisecond)...)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond}

	orch := orchestrator.New(orchestrator.Options{
		Catalog:  cat,
		Engines:  browser.NewSnapshot(engines...),
		Sessions: session.NewManager(drv, policy, logger),
		Store:    db,
		Session: session.Config{
			Headless: true,
			Viewport: browser.Viewport{Width: 1280, Height: 720},
		},
		Timeout:     5 * time.Second,
		BaseURL:     demo.BaseURL,
		ResultsDir:  os.Getenv("XBROWSE_RESULTS_DIR"),
		Concurrency: 4,
	}, logger)
	srv := api.NewServer(addr, db, orch, logger)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
