package playwright

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/seantiz/xbrowse/internal/browser"
)

// handle is one launched browser with its single context and page.
type handle struct {
	driver  *Driver
	engine  string
	browser pw.Browser
	context pw.BrowserContext
	page    pw.Page

	mu           sync.Mutex
	implicitWait time.Duration
	closed       bool
}

var _ browser.Handle = (*handle)(nil)

func (h *handle) wait() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.implicitWait
}

func (h *handle) live() error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return fmt.Errorf("%s already closed: %w", h.engine, browser.ErrSessionLost)
	}
	return nil
}

func (h *handle) Configure(_ context.Context, s browser.Settings) error {
	if err := h.live(); err != nil {
		return err
	}
	if s.Viewport.Width > 0 && s.Viewport.Height > 0 {
		if err := h.page.SetViewportSize(s.Viewport.Width, s.Viewport.Height); err != nil {
			return wrapPageErr("set viewport", err)
		}
	}
	if s.ImplicitWait > 0 {
		h.page.SetDefaultTimeout(float64(s.ImplicitWait.Milliseconds()))
	}
	h.mu.Lock()
	h.implicitWait = s.ImplicitWait
	h.mu.Unlock()
	return nil
}

func (h *handle) Ping(_ context.Context) error {
	if err := h.live(); err != nil {
		return err
	}
	if !h.browser.IsConnected() || h.page.IsClosed() {
		return fmt.Errorf("%s: %w", h.engine, browser.ErrSessionLost)
	}
	return nil
}

func (h *handle) Version() string {
	return h.browser.Version()
}

func (h *handle) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := h.page.Goto(url)
	return wrapPageErr("navigate to "+url, err)
}

func (h *handle) URL() string {
	return h.page.URL()
}

func (h *handle) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	title, err := h.page.Title()
	return title, wrapPageErr("title", err)
}

func (h *handle) Locate(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := h.page.Locator(selector).First()
	opts := pw.LocatorWaitForOptions{State: waitState(browser.StateAttached)}
	if w := h.wait(); w > 0 {
		opts.Timeout = pw.Float(float64(w.Milliseconds()))
	}
	if err := loc.WaitFor(opts); err != nil {
		return nil, wrapPageErr("locate "+selector, err)
	}
	return &element{locator: loc, selector: selector}, nil
}

func (h *handle) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := h.page.Locator(selector).Count()
	return n, wrapPageErr("count "+selector, err)
}

func (h *handle) WaitFor(ctx context.Context, cond browser.Condition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := cond.Timeout
	if timeout <= 0 {
		timeout = h.wait()
	}

	if cond.URLContains != "" {
		opts := pw.PageWaitForURLOptions{}
		if timeout > 0 {
			opts.Timeout = pw.Float(float64(timeout.Milliseconds()))
		}
		pattern := regexp.MustCompile(regexp.QuoteMeta(cond.URLContains))
		return wrapPageErr("wait for url "+cond.URLContains, h.page.WaitForURL(pattern, opts))
	}

	state := cond.State
	if state == "" {
		state = browser.StateVisible
	}
	opts := pw.LocatorWaitForOptions{State: waitState(state)}
	if timeout > 0 {
		opts.Timeout = pw.Float(float64(timeout.Milliseconds()))
	}
	err := h.page.Locator(cond.Selector).First().WaitFor(opts)
	return wrapPageErr(fmt.Sprintf("wait for %s %s", cond.Selector, state), err)
}

func (h *handle) Capture(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := h.page.Screenshot(pw.PageScreenshotOptions{
		Path:     pw.String(path),
		FullPage: pw.Bool(true),
	})
	return wrapPageErr("screenshot", err)
}

// Close closes the context and the browser, bounded by ctx and the
// graceful close timeout. The handle stays open if the close fails so the
// caller can fall back to Kill.
func (h *handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	start := time.Now()
	err := await(ctx, gracefulCloseTimeout, func() error {
		if err := h.context.Close(); err != nil {
			return fmt.Errorf("close context: %w", err)
		}
		if err := h.browser.Close(); err != nil {
			return fmt.Errorf("close browser: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", h.engine, err)
	}

	h.finish(start)
	return nil
}

// Kill closes the browser without unloading pages. The handle is
// considered gone afterward even if the driver reports an error.
func (h *handle) Kill() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.mu.Unlock()

	start := time.Now()
	err := await(context.Background(), killTimeout, func() error {
		return h.browser.Close()
	})
	h.finish(start)
	if err != nil {
		return fmt.Errorf("kill %s: %w", h.engine, err)
	}
	return nil
}

func (h *handle) finish(start time.Time) {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.driver.untrack(h)
	closeDuration.Observe(time.Since(start).Seconds())
}

func waitState(s string) *pw.WaitForSelectorState {
	state := pw.WaitForSelectorState(s)
	return &state
}

type element struct {
	locator  pw.Locator
	selector string
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapPageErr("click "+e.selector, e.locator.Click())
}

func (e *element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrapPageErr("fill "+e.selector, e.locator.Fill(value))
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.locator.TextContent()
	return text, wrapPageErr("text of "+e.selector, err)
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := e.locator.IsVisible()
	return ok, wrapPageErr("visibility of "+e.selector, err)
}
