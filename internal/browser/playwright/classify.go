package playwright

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pw "github.com/playwright-community/playwright-go"

	"github.com/seantiz/xbrowse/internal/browser"
)

// transientMarkers are error fragments reported by the driver when the
// engine was not ready yet. Anything else is treated as permanent.
var transientMarkers = []string{
	"connection refused",
	"econnrefused",
	"connection reset",
	"websocket error",
	"browser has disconnected",
	"target page, context or browser has been closed",
	"timeout",
}

// permanentMarkers win over transientMarkers.
var permanentMarkers = []string{
	"executable doesn't exist",
	"no such file or directory",
	"please run the following command to download new browsers",
	"unsupported",
	"is not supported",
	"permission denied",
}

// classifyLaunch wraps a launch failure as a browser.LaunchError, deciding
// whether a retry could succeed.
func classifyLaunch(engine string, err error) *browser.LaunchError {
	return &browser.LaunchError{Engine: engine, Transient: isTransient(err), Err: err}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(msg, m) {
			return false
		}
	}
	if errors.Is(err, pw.ErrTimeout) || errors.Is(err, pw.ErrTargetClosed) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// wrapPageErr maps driver errors raised while a test drives the page. A
// closed target means the browser went away under the test.
func wrapPageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pw.ErrTargetClosed) {
		return fmt.Errorf("%s: %w: %w", op, browser.ErrSessionLost, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
