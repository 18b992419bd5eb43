package playwright

import (
	"os"
	"strings"
	"time"
)

// Environment variable names for driver configuration.
const (
	envDriverDir      = "XBROWSE_PW_DRIVER_DIR"
	envInstall        = "XBROWSE_PW_INSTALL"
	envBrowsers       = "XBROWSE_PW_BROWSERS"
	envLaunchTimeout  = "XBROWSE_PW_LAUNCH_TIMEOUT"
	envChromiumNoSbox = "XBROWSE_PW_NO_SANDBOX"
)

// Config holds configuration for the playwright engine driver.
type Config struct {
	// DriverDirectory is where the playwright driver is installed. Empty
	// uses the library default.
	DriverDirectory string

	// Install downloads the driver and the bundled browsers before the
	// first launch.
	Install bool

	// Browsers restricts which bundled browsers Install downloads.
	Browsers []string

	// LaunchTimeout bounds each launch when the caller has no deadline.
	LaunchTimeout time.Duration

	// NoSandbox disables the chromium sandbox, needed in most containers.
	NoSandbox bool
}

// LoadConfig reads driver configuration from environment variables,
// applying defaults for values not set.
func LoadConfig() Config {
	cfg := Config{
		LaunchTimeout: DefaultLaunchTimeout,
		Browsers:      bundledBrowsers,
	}

	if v := os.Getenv(envDriverDir); v != "" {
		cfg.DriverDirectory = v
	}
	if v := os.Getenv(envInstall); v != "" {
		cfg.Install = parseBool(v)
	}
	if v := os.Getenv(envBrowsers); v != "" {
		var names []string
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		cfg.Browsers = names
	}
	if v := os.Getenv(envLaunchTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.LaunchTimeout = d
		}
	}
	if v := os.Getenv(envChromiumNoSbox); v != "" {
		cfg.NoSandbox = parseBool(v)
	}

	return cfg
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
