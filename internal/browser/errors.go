package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable is returned when a requested engine was not
	// discovered on this machine.
	ErrEngineUnavailable = errors.New("engine not available")

	// ErrSessionLost is wrapped by drivers when the browser behind a handle
	// disconnected or crashed.
	ErrSessionLost = errors.New("browser session lost")
)

// LaunchError is returned by drivers when a browser could not be started.
// Transient marks failures that are likely to succeed on retry (connection
// refused, driver not yet ready, handshake timeout).
type LaunchError struct {
	Engine    string
	Transient bool
	Err       error
}

func (e *LaunchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("launch %s (%s): %v", e.Engine, kind, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsTransientLaunch reports whether err carries a LaunchError marked
// transient.
func IsTransientLaunch(err error) bool {
	var le *LaunchError
	return errors.As(err, &le) && le.Transient
}
