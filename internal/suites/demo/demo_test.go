package demo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/browser/stub"
	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/suite"
	"github.com/seantiz/xbrowse/internal/suites/demo"
)

func runTest(ctx context.Context, t *testing.T, id string) error {
	t.Helper()
	drv := &stub.Driver{Pages: demo.Pages()}
	h, err := drv.Launch(context.Background(), stub.Available(model.EngineChrome)[0], browser.LaunchOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(context.Background()) })

	for _, tt := range demo.Tests(10 * time.Millisecond) {
		if tt.ID == id {
			return tt.Func(ctx, &suite.Env{Browser: h, BaseURL: demo.BaseURL, Engine: model.EngineChrome})
		}
	}
	t.Fatalf("no test %s", id)
	return nil
}

func TestOutcomes(t *testing.T) {
	ctx := context.Background()
	for _, id := range []string{"home/title", "home/banner", "home/products", "slow/load"} {
		assert.NoError(t, runTest(ctx, t, id), id)
	}

	var ae *suite.AssertionError
	assert.ErrorAs(t, runTest(ctx, t, "checkout/button"), &ae)
	assert.ErrorIs(t, runTest(ctx, t, "search/results"), suite.ErrSkipped)
}

func TestSlowHonorsDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runTest(ctx, t, "slow/load")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRegisters(t *testing.T) {
	cat := suite.NewCatalog()
	require.NoError(t, cat.Register(demo.Tests(0)...))
	sel, err := cat.Select(nil, []string{"smoke"})
	require.NoError(t, err)
	assert.Len(t, sel.Tests, 2)
}
