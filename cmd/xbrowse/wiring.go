package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/browser/playwright"
	"github.com/seantiz/xbrowse/internal/config"
	"github.com/seantiz/xbrowse/internal/orchestrator"
	"github.com/seantiz/xbrowse/internal/session"
	"github.com/seantiz/xbrowse/internal/store"
	"github.com/seantiz/xbrowse/internal/suite"
	"github.com/seantiz/xbrowse/internal/suites/sauce"
	"github.com/seantiz/xbrowse/internal/telemetry"
)

// loadConfig reads the configuration file named by --config, or the default
// file when it exists, and applies the global flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String(configFlag.Name)
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.LogLevel = c.String(logLevelFlag.Name)
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// deps holds the components shared by the run and serve commands.
type deps struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *browser.Registry
	driver   *playwright.Driver
	sessions *session.Manager
	catalog  *suite.Catalog
}

func newDeps(cfg config.Config, logger *slog.Logger) (*deps, error) {
	reg := browser.NewRegistry(browser.HostProber())
	cfg.ApplyEngines(reg)

	drv := playwright.NewDriver(playwright.LoadConfig(), logger)

	cat := suite.NewCatalog()
	if err := sauce.Register(cat); err != nil {
		return nil, err
	}

	return &deps{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		driver:   drv,
		sessions: session.NewManager(drv, cfg.RetryPolicy(), logger),
		catalog:  cat,
	}, nil
}

// orchestrator discovers engines and builds an orchestrator over them.
func (d *deps) orchestrator(c *cli.Context, st store.Store) *orchestrator.Orchestrator {
	snap := d.registry.Discover(c.Context)
	for _, e := range snap.All() {
		if e.Available {
			d.logger.Debug("engine available", "engine", e.Name, "path", e.ExecutablePath, "source", e.Source)
		} else {
			d.logger.Debug("engine unavailable", "engine", e.Name, "reason", e.Reason)
		}
	}

	return orchestrator.New(orchestrator.Options{
		Catalog:     d.catalog,
		Engines:     snap,
		Sessions:    d.sessions,
		Store:       st,
		Session:     d.cfg.SessionConfig(),
		Timeout:     d.cfg.Timeout.Std(),
		BaseURL:     d.cfg.BaseURL,
		ResultsDir:  d.cfg.ResultsDir,
		Concurrency: d.cfg.Workers(),
	}, d.logger)
}

// close tears down every session still open and stops the driver.
func (d *deps) close(c *cli.Context) {
	ctx := context.WithoutCancel(c.Context)
	d.sessions.ReleaseAll(ctx)
	if err := d.driver.Shutdown(ctx); err != nil {
		d.logger.Warn("driver shutdown failed", "error", err)
	}
}

// startTracing installs the trace exporter when telemetry is enabled. The
// returned func flushes pending spans.
func startTracing(c *cli.Context, cfg config.Config, logger *slog.Logger) (func(), error) {
	providers, err := telemetry.Init(c.Context, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}, nil
}
