package playwright

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
)

// Driver implements browser.Driver on top of playwright-go. The playwright
// runtime is started lazily on first launch and shared by every browser the
// driver opens.
type Driver struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	runtime *pw.Playwright
	active  map[*handle]struct{}
}

var _ browser.Driver = (*Driver)(nil)

// NewDriver creates a playwright driver. No process is started until the
// first Launch.
func NewDriver(cfg Config, logger *slog.Logger) *Driver {
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = DefaultLaunchTimeout
	}
	return &Driver{
		cfg:    cfg,
		logger: logger.With("component", "playwright"),
		active: make(map[*handle]struct{}),
	}
}

func (d *Driver) runOptions() *pw.RunOptions {
	return &pw.RunOptions{
		DriverDirectory: d.cfg.DriverDirectory,
		Browsers:        d.cfg.Browsers,
		Verbose:         false,
		Stdout:          io.Discard,
		Stderr:          io.Discard,
	}
}

// Install downloads the playwright driver and the configured bundled
// browsers.
func (d *Driver) Install() error {
	if err := pw.Install(d.runOptions()); err != nil {
		return fmt.Errorf("install playwright: %w", err)
	}
	return nil
}

// start returns the shared playwright runtime, starting it if needed.
func (d *Driver) start() (*pw.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.runtime != nil {
		return d.runtime, nil
	}
	if d.cfg.Install {
		if err := d.Install(); err != nil {
			return nil, err
		}
	}
	rt, err := pw.Run(d.runOptions())
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	d.runtime = rt
	d.logger.Info("playwright runtime started")
	return rt, nil
}

// Launch starts a browser for desc and opens a single page in a fresh
// context. Every partially created resource is closed on failure.
func (d *Driver) Launch(ctx context.Context, desc browser.EngineDescriptor, opts browser.LaunchOptions) (browser.Handle, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, &browser.LaunchError{Engine: desc.Name, Transient: true, Err: err}
	}

	rt, err := d.start()
	if err != nil {
		launchesTotal.WithLabelValues(desc.Name, resultPermanent).Inc()
		return nil, &browser.LaunchError{Engine: desc.Name, Err: err}
	}

	bt, err := browserType(rt, desc.Family)
	if err != nil {
		launchesTotal.WithLabelValues(desc.Name, resultPermanent).Inc()
		return nil, &browser.LaunchError{Engine: desc.Name, Err: err}
	}

	timeout := launchTimeout(ctx, opts.Timeout, d.cfg.LaunchTimeout)
	b, err := bt.Launch(buildLaunchOptions(desc, opts, d.cfg, timeout))
	if err != nil {
		return nil, d.launchFailed(desc.Name, fmt.Errorf("launch browser: %w", err))
	}

	bctx, err := b.NewContext(pw.BrowserNewContextOptions{
		Viewport: viewportSize(opts.Viewport),
	})
	if err != nil {
		_ = b.Close()
		return nil, d.launchFailed(desc.Name, fmt.Errorf("create context: %w", err))
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, d.launchFailed(desc.Name, fmt.Errorf("create page: %w", err))
	}

	h := &handle{
		driver:  d,
		engine:  desc.Name,
		browser: b,
		context: bctx,
		page:    page,
	}
	d.track(h)

	if err := ctx.Err(); err != nil {
		_ = h.Kill()
		launchesTotal.WithLabelValues(desc.Name, resultTransient).Inc()
		return nil, &browser.LaunchError{Engine: desc.Name, Transient: true, Err: err}
	}

	launchesTotal.WithLabelValues(desc.Name, resultLaunched).Inc()
	launchDuration.WithLabelValues(desc.Name).Observe(time.Since(start).Seconds())
	d.logger.Debug("browser launched",
		"engine", desc.Name,
		"version", b.Version(),
		"headless", opts.Headless,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return h, nil
}

func (d *Driver) launchFailed(engine string, err error) error {
	le := classifyLaunch(engine, err)
	result := resultPermanent
	if le.Transient {
		result = resultTransient
	}
	launchesTotal.WithLabelValues(engine, result).Inc()
	d.logger.Debug("browser launch failed", "engine", engine, "transient", le.Transient, "error", err)
	return le
}

func (d *Driver) track(h *handle) {
	d.mu.Lock()
	d.active[h] = struct{}{}
	d.mu.Unlock()
	activeBrowsers.Inc()
}

func (d *Driver) untrack(h *handle) {
	d.mu.Lock()
	_, ok := d.active[h]
	delete(d.active, h)
	d.mu.Unlock()
	if ok {
		activeBrowsers.Dec()
	}
}

// Shutdown kills every browser still open and stops the playwright
// runtime.
func (d *Driver) Shutdown(_ context.Context) error {
	d.mu.Lock()
	handles := make([]*handle, 0, len(d.active))
	for h := range d.active {
		handles = append(handles, h)
	}
	d.mu.Unlock()

	for _, h := range handles {
		if err := h.Kill(); err != nil {
			d.logger.Warn("shutdown kill failed", "engine", h.engine, "error", err)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.runtime == nil {
		return nil
	}
	err := d.runtime.Stop()
	d.runtime = nil
	if err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}

func browserType(rt *pw.Playwright, family string) (pw.BrowserType, error) {
	switch family {
	case model.FamilyChromium:
		return rt.Chromium, nil
	case model.FamilyFirefox:
		return rt.Firefox, nil
	case model.FamilyWebKit:
		return rt.WebKit, nil
	default:
		return nil, fmt.Errorf("unsupported engine family %q", family)
	}
}

// launchTimeout picks the handshake bound: explicit option, then the
// caller's deadline, then the configured default.
func launchTimeout(ctx context.Context, explicit, fallback time.Duration) time.Duration {
	if explicit > 0 {
		return explicit
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
	}
	return fallback
}

// buildLaunchOptions maps a descriptor and per-launch options onto the
// driver's launch options. Bundled builds are launched by family alone;
// system installs by channel, or by path when no channel applies.
func buildLaunchOptions(desc browser.EngineDescriptor, opts browser.LaunchOptions, cfg Config, timeout time.Duration) pw.BrowserTypeLaunchOptions {
	lo := pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(opts.Headless),
		Timeout:  pw.Float(float64(timeout.Milliseconds())),
	}

	switch {
	case desc.Source == browser.SourceBundled:
	case desc.Source == browser.SourceConfigured || desc.Channel == "":
		if desc.ExecutablePath != "" {
			lo.ExecutablePath = pw.String(desc.ExecutablePath)
		}
	default:
		lo.Channel = pw.String(desc.Channel)
	}

	var args []string
	args = append(args, desc.Args...)
	args = append(args, opts.Args...)
	if desc.Family == model.FamilyChromium {
		if cfg.NoSandbox {
			args = append(args, "--no-sandbox")
		}
		if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
			args = append(args, fmt.Sprintf("--window-size=%d,%d", opts.Viewport.Width, opts.Viewport.Height))
		}
	}
	if len(args) > 0 {
		lo.Args = args
	}

	if desc.Family == model.FamilyFirefox && (len(desc.Prefs) > 0 || len(opts.Prefs) > 0) {
		prefs := make(map[string]interface{}, len(desc.Prefs)+len(opts.Prefs))
		maps.Copy(prefs, desc.Prefs)
		maps.Copy(prefs, opts.Prefs)
		lo.FirefoxUserPrefs = prefs
	}

	return lo
}

func viewportSize(v browser.Viewport) *pw.Size {
	if v.Width <= 0 || v.Height <= 0 {
		return nil
	}
	return &pw.Size{Width: v.Width, Height: v.Height}
}

// await runs fn and waits for it, the context, or the timeout, whichever
// comes first. fn keeps running in the background after a timeout.
func await(ctx context.Context, timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
