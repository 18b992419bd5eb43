package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/seantiz/xbrowse/internal/config"
	"github.com/seantiz/xbrowse/internal/orchestrator"
	"github.com/seantiz/xbrowse/internal/report"
	"github.com/seantiz/xbrowse/internal/store"
	"github.com/seantiz/xbrowse/internal/suite"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run the selected tests on the selected engines",
	Flags: []cli.Flag{
		browsersFlag, testsFlag, tagsFlag, parallelFlag, concurrencyFlag,
		headlessFlag, timeoutFlag, baseURLFlag, resultsDirFlag, dbFlag, noColorFlag,
	},
	Action: runAction,
}

// applyRunFlags overrides the file configuration with explicit flags.
func applyRunFlags(c *cli.Context, cfg *config.Config) error {
	if c.IsSet(browsersFlag.Name) {
		cfg.Browsers = c.StringSlice(browsersFlag.Name)
	}
	if c.IsSet(testsFlag.Name) {
		cfg.TestPaths = c.StringSlice(testsFlag.Name)
	}
	if c.IsSet(tagsFlag.Name) {
		cfg.Tags = c.StringSlice(tagsFlag.Name)
	}
	if c.IsSet(parallelFlag.Name) {
		cfg.ParallelExecution = c.Bool(parallelFlag.Name)
	}
	if c.IsSet(concurrencyFlag.Name) {
		cfg.Concurrency = c.Int(concurrencyFlag.Name)
		cfg.ParallelExecution = true
	}
	if c.IsSet(headlessFlag.Name) {
		cfg.Headless = c.Bool(headlessFlag.Name)
	}
	if c.IsSet(timeoutFlag.Name) {
		cfg.Timeout = config.Duration(c.Duration(timeoutFlag.Name))
	}
	if c.IsSet(baseURLFlag.Name) {
		cfg.BaseURL = c.String(baseURLFlag.Name)
	}
	if c.IsSet(resultsDirFlag.Name) {
		cfg.ResultsDir = c.String(resultsDirFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, p := range cfg.TestPaths {
		if err := suite.CheckPattern(p); err != nil {
			return err
		}
	}
	return nil
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return setupError("load config: %v", err)
	}
	if err := applyRunFlags(c, &cfg); err != nil {
		return setupError("%v", err)
	}

	logger := config.NewTextLogger(os.Stderr, cfg.Level())

	stopTracing, err := startTracing(c, cfg, logger)
	if err != nil {
		return setupError("init telemetry: %v", err)
	}
	defer stopTracing()

	d, err := newDeps(cfg, logger)
	if err != nil {
		return setupError("load tests: %v", err)
	}
	defer d.close(c)

	var st store.Store
	if path := c.String(dbFlag.Name); path != "" {
		db, err := store.NewSQLiteStore(path)
		if err != nil {
			return setupError("open database: %v", err)
		}
		defer db.Close()
		st = db
	}

	orch := d.orchestrator(c, st)
	agg := orch.Execute(c.Context, orchestrator.Request{
		Engines: cfg.Browsers,
		Tests:   cfg.TestPaths,
		Tags:    cfg.Tags,
	})

	report.Print(os.Stdout, report.FromAggregate(agg), !c.Bool(noColorFlag.Name))
	if dir := orch.ResultsDir(agg.RunID); dir != "" {
		fmt.Fprintf(os.Stdout, "Results: %s\n", dir)
	}

	if agg.HasFailures() {
		return cli.Exit("", exitFailures)
	}
	return nil
}
