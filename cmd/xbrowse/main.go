// xbrowse runs browser UI test suites across engines.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// Exit codes.
const (
	exitFailures = 1
	exitSetup    = 2
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "xbrowse",
		Usage:   "run browser UI tests across engines",
		Version: version,
		Flags:   globalFlags,
		Commands: []*cli.Command{
			browsersCommand,
			runCommand,
			serveCommand,
			initCommand,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Exit coders are handled by the app; anything else is a usage or
	// setup problem.
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(exitSetup)
	}
}

// setupError reports a problem that prevented the command from running.
func setupError(format string, args ...any) error {
	return cli.Exit(fmt.Sprintf(format, args...), exitSetup)
}
