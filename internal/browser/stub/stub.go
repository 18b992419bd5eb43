// Package stub provides an in-memory browser driver. It backs the test
// server and the end-to-end tests, where no real engine is installed.
package stub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
)

// Driver is a scripted browser.Driver. The zero value launches every engine
// successfully.
type Driver struct {
	mu sync.Mutex

	// failures holds queued launch errors per engine, consumed in order.
	failures map[string][]error

	// Pages maps URLs to the page content served by Navigate.
	Pages map[string]PageContent

	// Versions maps engine names to reported versions.
	Versions map[string]string

	// CloseErr, when set, is returned by every handle's Close.
	CloseErr error

	// ConfigureErr, when set, is returned by every handle's Configure.
	ConfigureErr error

	launches atomic.Int64
	closes   atomic.Int64
	kills    atomic.Int64
	live     atomic.Int64
}

var _ browser.Driver = (*Driver)(nil)

// PageContent is what the stub renders at a URL.
type PageContent struct {
	Title string

	// Elements maps selectors to element text.
	Elements map[string]string

	// Redirect maps a selector to the URL navigated to when it is clicked.
	Redirect map[string]string
}

// FailLaunch queues errs to be returned by the next launches of engine.
func (d *Driver) FailLaunch(engine string, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures == nil {
		d.failures = make(map[string][]error)
	}
	d.failures[engine] = append(d.failures[engine], errs...)
}

// Launches returns the number of Launch calls, successful or not.
func (d *Driver) Launches() int { return int(d.launches.Load()) }

// Closes returns the number of graceful closes that succeeded.
func (d *Driver) Closes() int { return int(d.closes.Load()) }

// Kills returns the number of forced teardowns.
func (d *Driver) Kills() int { return int(d.kills.Load()) }

// Live returns the number of handles not yet closed or killed.
func (d *Driver) Live() int { return int(d.live.Load()) }

// Launch implements browser.Driver.
func (d *Driver) Launch(ctx context.Context, desc browser.EngineDescriptor, opts browser.LaunchOptions) (browser.Handle, error) {
	d.launches.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, &browser.LaunchError{Engine: desc.Name, Transient: true, Err: err}
	}

	d.mu.Lock()
	var failure error
	if q := d.failures[desc.Name]; len(q) > 0 {
		failure = q[0]
		d.failures[desc.Name] = q[1:]
	}
	d.mu.Unlock()
	if failure != nil {
		return nil, failure
	}

	d.live.Add(1)
	return &Handle{
		driver:   d,
		engine:   desc.Name,
		version:  d.version(desc.Name),
		viewport: opts.Viewport,
		url:      "about:blank",
	}, nil
}

func (d *Driver) version(engine string) string {
	if v, ok := d.Versions[engine]; ok {
		return v
	}
	return "stub-" + engine + "-1.0"
}

// Handle is a stub browser.Handle.
type Handle struct {
	driver  *Driver
	engine  string
	version string

	mu       sync.Mutex
	url      string
	viewport browser.Viewport
	closed   bool
	lost     bool
}

var _ browser.Handle = (*Handle)(nil)

// Lose simulates a browser crash: every later call fails with
// browser.ErrSessionLost.
func (h *Handle) Lose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lost = true
}

// Viewport returns the last configured window size.
func (h *Handle) Viewport() browser.Viewport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewport
}

func (h *Handle) check() error {
	if h.closed {
		return fmt.Errorf("%s: %w", h.engine, browser.ErrSessionLost)
	}
	if h.lost {
		return fmt.Errorf("%s crashed: %w", h.engine, browser.ErrSessionLost)
	}
	return nil
}

func (h *Handle) Configure(_ context.Context, s browser.Settings) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	if h.driver.ConfigureErr != nil {
		return h.driver.ConfigureErr
	}
	h.viewport = s.Viewport
	return nil
}

func (h *Handle) Ping(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.check()
}

func (h *Handle) Version() string { return h.version }

func (h *Handle) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	h.url = url
	return nil
}

func (h *Handle) URL() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.url
}

func (h *Handle) page() PageContent {
	return h.driver.Pages[h.url]
}

func (h *Handle) Title(_ context.Context) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return "", err
	}
	return h.page().Title, nil
}

func (h *Handle) Locate(_ context.Context, selector string) (browser.Element, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return nil, err
	}
	text, ok := h.page().Elements[selector]
	if !ok {
		return nil, fmt.Errorf("locate %q: element not found", selector)
	}
	return &element{handle: h, selector: selector, text: text}, nil
}

func (h *Handle) Count(_ context.Context, selector string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return 0, err
	}
	n := 0
	for sel := range h.page().Elements {
		if sel == selector || strings.HasPrefix(sel, selector+" >> nth=") {
			n++
		}
	}
	return n, nil
}

func (h *Handle) WaitFor(ctx context.Context, cond browser.Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	if cond.URLContains != "" {
		if !strings.Contains(h.url, cond.URLContains) {
			return fmt.Errorf("wait for url containing %q: still at %s", cond.URLContains, h.url)
		}
		return nil
	}
	_, present := h.page().Elements[cond.Selector]
	switch cond.State {
	case browser.StateDetached, browser.StateHidden:
		if present {
			return fmt.Errorf("wait for %q to be %s: still present", cond.Selector, cond.State)
		}
	default:
		if !present {
			return fmt.Errorf("wait for %q to be %s: not found", cond.Selector, cond.State)
		}
	}
	return nil
}

// Capture writes a small placeholder file so artifact paths are real.
func (h *Handle) Capture(_ context.Context, path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.check(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("stub screenshot of "+h.url+"\n"), 0o644)
}

func (h *Handle) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if h.driver.CloseErr != nil {
		return h.driver.CloseErr
	}
	h.closed = true
	h.driver.closes.Add(1)
	h.driver.live.Add(-1)
	return nil
}

func (h *Handle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.driver.kills.Add(1)
	h.driver.live.Add(-1)
	return nil
}

type element struct {
	handle   *Handle
	selector string
	text     string
}

func (e *element) Click(_ context.Context) error {
	e.handle.mu.Lock()
	defer e.handle.mu.Unlock()
	if err := e.handle.check(); err != nil {
		return err
	}
	if to, ok := e.handle.page().Redirect[e.selector]; ok {
		e.handle.url = to
	}
	return nil
}

func (e *element) Fill(_ context.Context, _ string) error {
	e.handle.mu.Lock()
	defer e.handle.mu.Unlock()
	return e.handle.check()
}

func (e *element) Text(_ context.Context) (string, error) {
	e.handle.mu.Lock()
	defer e.handle.mu.Unlock()
	if err := e.handle.check(); err != nil {
		return "", err
	}
	return e.text, nil
}

func (e *element) Visible(_ context.Context) (bool, error) {
	e.handle.mu.Lock()
	defer e.handle.mu.Unlock()
	if err := e.handle.check(); err != nil {
		return false, err
	}
	return true, nil
}

// Available returns descriptors marking each named engine as installed, for
// building a browser.Snapshot without probing the host.
func Available(names ...string) []browser.EngineDescriptor {
	out := make([]browser.EngineDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, browser.EngineDescriptor{
			Name:           n,
			Family:         family(n),
			ExecutablePath: "/stub/" + n,
			Source:         browser.SourceConfigured,
			Available:      true,
			Capabilities:   browser.Capabilities{Headless: true, Screenshots: true, WindowSize: true},
		})
	}
	return out
}

// Missing returns a descriptor for an engine that discovery did not find.
func Missing(name string) browser.EngineDescriptor {
	return browser.EngineDescriptor{Name: name, Family: family(name), Reason: "not installed"}
}

func family(name string) string {
	switch name {
	case model.EngineFirefox:
		return model.FamilyFirefox
	case model.EngineWebKit:
		return model.FamilyWebKit
	default:
		return model.FamilyChromium
	}
}

// ErrRefused is a transient launch failure for scripting retries.
var ErrRefused = errors.New("connection refused")

// Transient wraps ErrRefused as a transient launch error for engine.
func Transient(engine string) error {
	return &browser.LaunchError{Engine: engine, Transient: true, Err: ErrRefused}
}

// Permanent returns a non-retryable launch error for engine.
func Permanent(engine string) error {
	return &browser.LaunchError{Engine: engine, Err: errors.New("executable rejected the launch arguments")}
}
