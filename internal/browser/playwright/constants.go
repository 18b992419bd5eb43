package playwright

import "time"

// DriverName identifies this driver in logs and metrics.
const DriverName = "playwright"

// Timeouts applied when the caller does not provide one.
const (
	// DefaultLaunchTimeout bounds the browser handshake.
	DefaultLaunchTimeout = 30 * time.Second

	// gracefulCloseTimeout is the time allowed for Close before the
	// browser is killed.
	gracefulCloseTimeout = 5 * time.Second

	// killTimeout bounds a forced teardown.
	killTimeout = 3 * time.Second
)

// Bundled browser names understood by the driver's installer.
var bundledBrowsers = []string{"chromium", "firefox", "webkit"}
