package browser

import (
	"context"
	"time"
)

// Driver is the interface that all engine automation backends must
// implement. A driver turns an engine descriptor into a live browser.
type Driver interface {
	// Launch starts a browser for the described engine. The context bounds
	// the handshake with the engine process. On error, any process or handle
	// created before the failure must already be reclaimed, or returned as a
	// non-nil Handle so the caller can reclaim it.
	Launch(ctx context.Context, desc EngineDescriptor, opts LaunchOptions) (Handle, error)
}

// Page is the capability surface a test body drives. It deliberately
// exposes only navigation, element lookup, waiting, artifact capture and
// close.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL() string
	Title(ctx context.Context) (string, error)

	// Locate returns the first element matching selector, waiting up to the
	// session's implicit wait for it to be attached.
	Locate(ctx context.Context, selector string) (Element, error)

	// Count returns the number of elements currently matching selector.
	Count(ctx context.Context, selector string) (int, error)

	WaitFor(ctx context.Context, cond Condition) error

	// Capture writes a screenshot of the current page to path.
	Capture(ctx context.Context, path string) error

	Close(ctx context.Context) error
}

// Element is a located element on a Page.
type Element interface {
	Click(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Text(ctx context.Context) (string, error)
	Visible(ctx context.Context) (bool, error)
}

// Handle is a launched browser owned by exactly one session.
type Handle interface {
	Page

	// Configure applies window size and implicit wait to the live browser.
	Configure(ctx context.Context, s Settings) error

	// Ping reports whether the browser is still connected and usable.
	Ping(ctx context.Context) error

	// Version returns the engine version reported by the browser.
	Version() string

	// Kill tears the browser down without waiting for pages to unload. It
	// is used after timeouts and crashes and is safe to call more than once.
	Kill() error
}

// Element wait states accepted by Condition.State.
const (
	StateAttached = "attached"
	StateDetached = "detached"
	StateVisible  = "visible"
	StateHidden   = "hidden"
)

// Condition describes what WaitFor blocks on. Exactly one of Selector or
// URLContains is expected to be set.
type Condition struct {
	Selector    string
	State       string
	URLContains string

	// Timeout overrides the implicit wait when positive.
	Timeout time.Duration
}

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Settings is the per-session configuration applied once a browser is up.
type Settings struct {
	Viewport     Viewport
	Headless     bool
	ImplicitWait time.Duration
}

// LaunchOptions configures a single Launch call.
type LaunchOptions struct {
	Headless bool
	Viewport Viewport
	Args     []string
	Prefs    map[string]any

	// Timeout bounds the engine handshake. Zero leaves it to the driver.
	Timeout time.Duration
}

// Capabilities describes what an engine supports.
type Capabilities struct {
	Headless    bool `json:"headless"`
	Screenshots bool `json:"screenshots"`
	WindowSize  bool `json:"window_size"`
	LaunchArgs  bool `json:"launch_args"`
	Prefs       bool `json:"prefs"`
}

// Probe sources recorded on a descriptor.
const (
	SourceConfigured = "configured"
	SourceSystem     = "system"
	SourceBundled    = "bundled"
)

// EngineDescriptor is the discovery result for one engine kind. It is
// created once per discovery and never modified afterward.
type EngineDescriptor struct {
	Name           string         `json:"name"`
	Family         string         `json:"family"`
	Channel        string         `json:"channel,omitempty"`
	ExecutablePath string         `json:"executable_path,omitempty"`
	Source         string         `json:"source,omitempty"`
	Available      bool           `json:"available"`
	Reason         string         `json:"reason,omitempty"`
	Capabilities   Capabilities   `json:"capabilities"`
	Args           []string       `json:"args,omitempty"`
	Prefs          map[string]any `json:"prefs,omitempty"`
}
