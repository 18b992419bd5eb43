package main

import (
	"github.com/urfave/cli/v2"

	"github.com/seantiz/xbrowse/internal/config"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		EnvVars: []string{"XBROWSE_CONFIG"},
		Usage:   "path to the YAML configuration file (default " + config.DefaultPath + " when present)",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "log level: debug, info, warn or error",
	}
)

var globalFlags = []cli.Flag{configFlag, logLevelFlag}

var (
	browsersFlag = &cli.StringSliceFlag{
		Name:    "browsers",
		Aliases: []string{"b"},
		Usage:   "engines to run on (default: the configured list)",
	}
	testsFlag = &cli.StringSliceFlag{
		Name:    "tests",
		Aliases: []string{"t"},
		Usage:   "test ID patterns, e.g. 'login/*' (default: every test)",
	}
	tagsFlag = &cli.StringSliceFlag{
		Name:  "tags",
		Usage: "only run tests carrying one of these tags",
	}
	parallelFlag = &cli.BoolFlag{
		Name:    "parallel",
		Aliases: []string{"p"},
		Usage:   "run units in parallel",
	}
	concurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "worker pool size when running in parallel",
	}
	headlessFlag = &cli.BoolFlag{
		Name:  "headless",
		Usage: "run every engine headless",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "per-test timeout",
	}
	baseURLFlag = &cli.StringFlag{
		Name:  "base-url",
		Usage: "application under test",
	}
	resultsDirFlag = &cli.StringFlag{
		Name:  "results-dir",
		Usage: "directory receiving one folder per run",
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "also record the run in this SQLite database",
	}
	noColorFlag = &cli.BoolFlag{
		Name:    "no-color",
		EnvVars: []string{"NO_COLOR"},
		Usage:   "disable colored output",
	}
	installFlag = &cli.BoolFlag{
		Name:  "install",
		Usage: "download the driver-managed browsers before listing",
	}
	forceFlag = &cli.BoolFlag{
		Name:  "force",
		Usage: "overwrite an existing configuration file",
	}
	listenFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "HTTP listen address",
	}
)
