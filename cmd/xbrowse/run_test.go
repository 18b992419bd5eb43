package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/seantiz/xbrowse/internal/config"
)

// parseRun runs args through the run command's flags and returns the
// resulting configuration.
func parseRun(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var (
		cfg    config.Config
		runErr error
	)
	app := &cli.App{
		Name:  "xbrowse",
		Flags: globalFlags,
		Commands: []*cli.Command{{
			Name:  "run",
			Flags: runCommand.Flags,
			Action: func(c *cli.Context) error {
				var err error
				cfg, err = loadConfig(c)
				if err != nil {
					runErr = err
					return nil
				}
				runErr = applyRunFlags(c, &cfg)
				return nil
			},
		}},
	}
	require.NoError(t, app.Run(append([]string{"xbrowse"}, args...)))
	return cfg, runErr
}

func TestRunFlagsOverrideFile(t *testing.T) {
	for _, k := range []string{"XBROWSE_HEADLESS", "XBROWSE_CONCURRENCY", "XBROWSE_RESULTS_DIR", "XBROWSE_LOG_LEVEL", "XBROWSE_CONFIG"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "xbrowse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browsers: [chrome]\nheadless: false\ntimeout: 10\n"), 0o644))

	cfg, err := parseRun(t,
		"--config", path, "--log-level", "debug",
		"run", "--browsers", "firefox", "--browsers", "safari",
		"--tests", "login/*", "--headless", "--concurrency", "3", "--timeout", "45s",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"firefox", "safari"}, cfg.Browsers)
	assert.Equal(t, []string{"login/*"}, cfg.TestPaths)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 3, cfg.Workers(), "concurrency implies parallel execution")
	assert.Equal(t, 45*time.Second, cfg.Timeout.Std())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestRunFlagsKeepFileValues(t *testing.T) {
	for _, k := range []string{"XBROWSE_HEADLESS", "XBROWSE_CONCURRENCY", "XBROWSE_CONFIG"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(t.TempDir(), "xbrowse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("browsers: [edge]\nheadless: true\n"), 0o644))

	cfg, err := parseRun(t, "--config", path, "run")
	require.NoError(t, err)
	assert.Equal(t, []string{"edge"}, cfg.Browsers)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 1, cfg.Workers())
}

func TestRunFlagsRejectInvalid(t *testing.T) {
	t.Setenv("XBROWSE_CONFIG", "")
	t.Chdir(t.TempDir())

	_, err := parseRun(t, "run", "--concurrency", "0")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = parseRun(t, "--config", "missing.yaml", "run")
	assert.Error(t, err)
}
