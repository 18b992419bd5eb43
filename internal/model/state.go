package model

// Outcome status constants.
const (
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusErrored  = "errored"
	StatusSkipped  = "skipped"
	StatusTimedOut = "timed_out"
)

// Statuses lists every outcome status in report order.
var Statuses = []string{StatusPassed, StatusFailed, StatusErrored, StatusSkipped, StatusTimedOut}

// Run state constants. There is no aborted state: a run always completes
// with one outcome per unit.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
)

// Session state constants.
const (
	SessionLaunching   = "launching"
	SessionReady       = "ready"
	SessionBusy        = "busy"
	SessionTerminating = "terminating"
	SessionClosed      = "closed"
	SessionFailed      = "failed"
)

// Engine name constants for the engine kinds known to the registry.
const (
	EngineChrome   = "chrome"
	EngineChromium = "chromium"
	EngineEdge     = "edge"
	EngineFirefox  = "firefox"
	EngineWebKit   = "webkit"
)

// Engine family constants. A family selects the automation protocol used to
// drive the engine.
const (
	FamilyChromium = "chromium"
	FamilyFirefox  = "firefox"
	FamilyWebKit   = "webkit"
)

var runTransitions = map[string]map[string]bool{
	RunPending: {
		RunRunning: true,
	},
	RunRunning: {
		RunCompleted: true,
	},
}

var sessionTransitions = map[string]map[string]bool{
	SessionLaunching: {
		SessionReady:       true,
		SessionFailed:      true,
		SessionTerminating: true,
	},
	SessionReady: {
		SessionBusy:        true,
		SessionTerminating: true,
	},
	SessionBusy: {
		SessionReady:       true,
		SessionTerminating: true,
	},
	SessionTerminating: {
		SessionClosed: true,
		SessionFailed: true,
	},
}

// ValidRunTransition reports whether a run may move between the two states.
func ValidRunTransition(from, to string) bool {
	return runTransitions[from][to]
}

// ValidSessionTransition reports whether a session may move between the two
// states.
func ValidSessionTransition(from, to string) bool {
	return sessionTransitions[from][to]
}

// IsFailureStatus reports whether an outcome status counts against the run
// (and therefore produces a non-zero exit code).
func IsFailureStatus(status string) bool {
	switch status {
	case StatusFailed, StatusErrored, StatusTimedOut:
		return true
	default:
		return false
	}
}
