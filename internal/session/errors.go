package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/seantiz/xbrowse/internal/browser"
)

var (
	// ErrInvalidTransition is returned when a session is moved to a state
	// its current state does not allow.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrNotUsable is returned by HealthCheck for sessions that are no
	// longer ready or busy.
	ErrNotUsable = errors.New("session not usable")
)

// SessionError is returned by Acquire when no usable session could be
// established.
type SessionError struct {
	Engine    string
	Attempts  int
	Transient bool
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("establish %s session failed after %d attempt(s): %v", e.Engine, e.Attempts, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// TeardownWarning reports a session that did not shut down cleanly.
// Reclaimed is true when a forced teardown succeeded after the graceful
// close failed.
type TeardownWarning struct {
	SessionID string
	Engine    string
	Reclaimed bool
	Err       error
}

func (w *TeardownWarning) Error() string {
	if w.Reclaimed {
		return fmt.Sprintf("%s session %s needed a forced teardown: %v", w.Engine, w.SessionID, w.Err)
	}
	return fmt.Sprintf("%s session %s teardown failed: %v", w.Engine, w.SessionID, w.Err)
}

func (w *TeardownWarning) Unwrap() error {
	return w.Err
}

// configureError marks a failure applying settings to a fresh browser. It
// is never retried.
type configureError struct {
	err error
}

func (e *configureError) Error() string { return "configure session: " + e.err.Error() }
func (e *configureError) Unwrap() error { return e.err }

// Classify reports whether a session establishment error is transient and
// worth another attempt.
func Classify(err error) bool {
	if err == nil {
		return false
	}

	var ce *configureError
	if errors.As(err, &ce) {
		return false
	}

	var le *browser.LaunchError
	if errors.As(err, &le) {
		return le.Transient
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}
