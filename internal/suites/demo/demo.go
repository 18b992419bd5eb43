// Package demo is a small suite written against the stub driver's pages.
// The test server and the end-to-end tests run it where no real browser is
// installed.
package demo

import (
	"context"
	"time"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/browser/stub"
	"github.com/seantiz/xbrowse/internal/suite"
)

// BaseURL is the address the stub pages are served under.
const BaseURL = "http://demo.test"

// Pages returns the site the suite expects, for stub.Driver.Pages.
func Pages() map[string]stub.PageContent {
	return map[string]stub.PageContent{
		BaseURL + "/": {
			Title: "Demo Store",
			Elements: map[string]string{
				"#banner":            "Welcome to the demo store",
				"a.product >> nth=0": "Backpack",
				"a.product >> nth=1": "Bike Light",
			},
		},
	}
}

// Tests returns the suite. Slow controls how long slow/load takes.
func Tests(slow time.Duration) []suite.Test {
	return []suite.Test{
		{ID: "home/title", Tags: []string{"smoke"}, Func: testTitle},
		{ID: "home/banner", Tags: []string{"smoke"}, Func: testBanner},
		{ID: "home/products", Func: testProducts},
		{ID: "checkout/button", Tags: []string{"checkout"}, Func: testCheckout},
		{ID: "search/results", Func: func(context.Context, *suite.Env) error {
			return suite.Skip("search is not deployed")
		}},
		{ID: "slow/load", Tags: []string{"slow"}, Func: func(ctx context.Context, env *suite.Env) error {
			select {
			case <-time.After(slow):
			case <-ctx.Done():
				return ctx.Err()
			}
			return testTitle(ctx, env)
		}},
	}
}

func home(ctx context.Context, env *suite.Env) error {
	return env.Browser.Navigate(ctx, env.BaseURL+"/")
}

func testTitle(ctx context.Context, env *suite.Env) error {
	if err := home(ctx, env); err != nil {
		return err
	}
	title, err := env.Browser.Title(ctx)
	if err != nil {
		return err
	}
	return suite.Equal(title, "Demo Store", "page title")
}

func testBanner(ctx context.Context, env *suite.Env) error {
	if err := home(ctx, env); err != nil {
		return err
	}
	el, err := env.Browser.Locate(ctx, "#banner")
	if err != nil {
		return err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return err
	}
	return suite.Contains(text, "Welcome", "banner")
}

func testProducts(ctx context.Context, env *suite.Env) error {
	if err := home(ctx, env); err != nil {
		return err
	}
	n, err := env.Browser.Count(ctx, "a.product")
	if err != nil {
		return err
	}
	return suite.Equal(n, 2, "product count")
}

func testCheckout(ctx context.Context, env *suite.Env) error {
	if err := home(ctx, env); err != nil {
		return err
	}
	err := env.Browser.WaitFor(ctx, browser.Condition{Selector: "#checkout", State: browser.StateVisible})
	return suite.Assert(err == nil, "checkout button not shown")
}
