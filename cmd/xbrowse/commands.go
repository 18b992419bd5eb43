package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/seantiz/xbrowse/internal/api"
	"github.com/seantiz/xbrowse/internal/config"
	"github.com/seantiz/xbrowse/internal/report"
	"github.com/seantiz/xbrowse/internal/store"
)

var browsersCommand = &cli.Command{
	Name:   "browsers",
	Usage:  "list the browser engines and whether they are installed",
	Flags:  []cli.Flag{installFlag},
	Action: browsersAction,
}

func browsersAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return setupError("load config: %v", err)
	}
	logger := config.NewTextLogger(os.Stderr, cfg.Level())

	d, err := newDeps(cfg, logger)
	if err != nil {
		return setupError("%v", err)
	}
	defer d.close(c)

	if c.Bool(installFlag.Name) {
		logger.Info("installing browsers")
		if err := d.driver.Install(); err != nil {
			return setupError("%v", err)
		}
	}

	report.PrintEngines(os.Stdout, d.registry.Discover(c.Context).All())
	return nil
}

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "start the HTTP API",
	Flags:  []cli.Flag{listenFlag},
	Action: serveAction,
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return setupError("load config: %v", err)
	}
	if c.IsSet(listenFlag.Name) {
		cfg.ListenAddr = c.String(listenFlag.Name)
	}
	logger := config.NewLogger(os.Stdout, cfg.Level())

	logger.Info("xbrowse: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"results_dir", cfg.ResultsDir,
	)

	stopTracing, err := startTracing(c, cfg, logger)
	if err != nil {
		return setupError("init telemetry: %v", err)
	}
	defer stopTracing()

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return setupError("open database: %v", err)
	}
	defer db.Close()

	d, err := newDeps(cfg, logger)
	if err != nil {
		return setupError("%v", err)
	}
	defer d.close(c)

	srv := api.NewServer(cfg.ListenAddr, db, d.orchestrator(c, db), logger)
	if err := srv.Run(); err != nil {
		return cli.Exit(err.Error(), exitFailures)
	}
	return nil
}

var initCommand = &cli.Command{
	Name:      "init",
	Usage:     "write a default configuration file",
	ArgsUsage: "[path]",
	Flags:     []cli.Flag{forceFlag},
	Action:    initAction,
}

func initAction(c *cli.Context) error {
	path := config.DefaultPath
	if c.Args().Present() {
		path = c.Args().First()
	}
	if err := config.WriteDefault(path, c.Bool(forceFlag.Name)); err != nil {
		return setupError("%v", err)
	}

	dir := config.Default().ResultsDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return setupError("create results dir: %v", err)
	}

	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}
