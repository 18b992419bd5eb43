package playwright

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	pw "github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
)

func TestBuildLaunchOptionsSystemChannel(t *testing.T) {
	desc := browser.EngineDescriptor{
		Name:           model.EngineChrome,
		Family:         model.FamilyChromium,
		Channel:        "chrome",
		ExecutablePath: "/usr/bin/google-chrome",
		Source:         browser.SourceSystem,
		Args:           []string{"--disable-gpu"},
	}
	opts := browser.LaunchOptions{
		Headless: true,
		Viewport: browser.Viewport{Width: 1280, Height: 720},
		Args:     []string{"--incognito"},
	}

	lo := buildLaunchOptions(desc, opts, Config{NoSandbox: true}, 10*time.Second)

	require.NotNil(t, lo.Channel)
	assert.Equal(t, "chrome", *lo.Channel)
	assert.Nil(t, lo.ExecutablePath, "channel installs launch by channel")
	require.NotNil(t, lo.Headless)
	assert.True(t, *lo.Headless)
	require.NotNil(t, lo.Timeout)
	assert.Equal(t, 10000.0, *lo.Timeout)
	assert.Equal(t, []string{"--disable-gpu", "--incognito", "--no-sandbox", "--window-size=1280,720"}, lo.Args)
	assert.Nil(t, lo.FirefoxUserPrefs)
}

func TestBuildLaunchOptionsConfiguredPath(t *testing.T) {
	desc := browser.EngineDescriptor{
		Name:           model.EngineEdge,
		Family:         model.FamilyChromium,
		Channel:        "msedge",
		ExecutablePath: "/srv/edge/msedge",
		Source:         browser.SourceConfigured,
	}

	lo := buildLaunchOptions(desc, browser.LaunchOptions{}, Config{}, time.Second)

	require.NotNil(t, lo.ExecutablePath)
	assert.Equal(t, "/srv/edge/msedge", *lo.ExecutablePath)
	assert.Nil(t, lo.Channel)
	assert.Empty(t, lo.Args)
}

func TestBuildLaunchOptionsBundledFirefoxPrefs(t *testing.T) {
	desc := browser.EngineDescriptor{
		Name:           model.EngineFirefox,
		Family:         model.FamilyFirefox,
		ExecutablePath: "/home/ci/.cache/ms-playwright/firefox-1471",
		Source:         browser.SourceBundled,
		Prefs:          map[string]any{"dom.webnotifications.enabled": false},
	}
	opts := browser.LaunchOptions{
		Viewport: browser.Viewport{Width: 800, Height: 600},
		Prefs:    map[string]any{"intl.accept_languages": "en-US"},
	}

	lo := buildLaunchOptions(desc, opts, Config{NoSandbox: true}, time.Second)

	assert.Nil(t, lo.ExecutablePath, "bundled builds are resolved by the driver")
	assert.Nil(t, lo.Channel)
	assert.Empty(t, lo.Args, "chromium-only flags are not passed to firefox")
	assert.Equal(t, map[string]interface{}{
		"dom.webnotifications.enabled": false,
		"intl.accept_languages":        "en-US",
	}, lo.FirefoxUserPrefs)
}

func TestBuildLaunchOptionsSystemWithoutChannel(t *testing.T) {
	desc := browser.EngineDescriptor{
		Name:           model.EngineChromium,
		Family:         model.FamilyChromium,
		ExecutablePath: "/usr/bin/chromium",
		Source:         browser.SourceSystem,
	}
	lo := buildLaunchOptions(desc, browser.LaunchOptions{}, Config{}, time.Second)
	require.NotNil(t, lo.ExecutablePath)
	assert.Equal(t, "/usr/bin/chromium", *lo.ExecutablePath)
}

func TestLaunchTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, launchTimeout(context.Background(), 5*time.Second, time.Minute))
	assert.Equal(t, time.Minute, launchTimeout(context.Background(), 0, time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got := launchTimeout(ctx, 0, time.Minute)
	assert.LessOrEqual(t, got, 2*time.Second)
	assert.Greater(t, got, time.Duration(0))
}

func TestViewportSize(t *testing.T) {
	assert.Nil(t, viewportSize(browser.Viewport{}))
	assert.Nil(t, viewportSize(browser.Viewport{Width: 100}))
	assert.Equal(t, &pw.Size{Width: 1024, Height: 768}, viewportSize(browser.Viewport{Width: 1024, Height: 768}))
}

func TestBrowserTypeUnknownFamily(t *testing.T) {
	_, err := browserType(nil, "trident")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trident")
}

func TestLaunchCancelledContext(t *testing.T) {
	d := NewDriver(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := d.Launch(ctx, browser.EngineDescriptor{Name: model.EngineChrome, Family: model.FamilyChromium}, browser.LaunchOptions{})
	assert.Nil(t, h)
	require.Error(t, err)
	assert.True(t, browser.IsTransientLaunch(err))
	assert.NoError(t, d.Shutdown(context.Background()), "nothing was started")
}

func TestClassifyLaunch(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:9222: connect: connection refused"), true},
		{"driver timeout", fmt.Errorf("launch: %w", pw.ErrTimeout), true},
		{"target closed", fmt.Errorf("launch: %w", pw.ErrTargetClosed), true},
		{"deadline", context.DeadlineExceeded, true},
		{"missing executable", errors.New("Executable doesn't exist at /ms-playwright/chromium-1091/chrome"), false},
		{"missing browsers", errors.New("Looks like Playwright was just installed. Please run the following command to download new browsers"), false},
		{"timeout but missing", errors.New("timeout: executable doesn't exist"), false},
		{"cancelled", context.Canceled, false},
		{"unknown", errors.New("something odd"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			le := classifyLaunch(model.EngineChrome, tt.err)
			assert.Equal(t, tt.transient, le.Transient)
			assert.ErrorIs(t, le, tt.err)
		})
	}
}

func TestWrapPageErr(t *testing.T) {
	assert.NoError(t, wrapPageErr("click", nil))

	err := wrapPageErr("click #login", fmt.Errorf("boom: %w", pw.ErrTargetClosed))
	assert.ErrorIs(t, err, browser.ErrSessionLost)
	assert.ErrorIs(t, err, pw.ErrTargetClosed)

	err = wrapPageErr("click #login", pw.ErrTimeout)
	assert.NotErrorIs(t, err, browser.ErrSessionLost)
	assert.Contains(t, err.Error(), "click #login")
}
