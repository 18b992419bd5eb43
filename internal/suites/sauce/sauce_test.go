package sauce_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/suite"
	"github.com/seantiz/xbrowse/internal/suites/sauce"
)

const storeURL = "http://store.test"

// fakeStore is an in-memory rendition of the demo store's behavior.
type fakeStore struct {
	products int
	url      string
	fields   map[string]string
	errMsg   string
	cart     int
	added    map[int]bool
}

func newStore(products int) *fakeStore {
	return &fakeStore{products: products, fields: map[string]string{}, added: map[int]bool{}}
}

func (s *fakeStore) onInventory() bool { return strings.HasSuffix(s.url, "/inventory.html") }

func (s *fakeStore) present(sel string) bool {
	if !s.onInventory() {
		switch sel {
		case "#user-name", "#password", "#login-button":
			return true
		case "[data-test='error']":
			return s.errMsg != ""
		}
		return false
	}
	switch sel {
	case "#inventory_container":
		return true
	case ".shopping_cart_badge":
		return s.cart > 0
	}
	var i int
	if _, err := fmt.Sscanf(sel, "button[id^='add-to-cart'] >> nth=%d", &i); err == nil {
		return i < s.products && !s.added[i]
	}
	return false
}

func (s *fakeStore) Navigate(_ context.Context, url string) error {
	s.url = url
	s.errMsg = ""
	return nil
}

func (s *fakeStore) URL() string { return s.url }

func (s *fakeStore) Title(context.Context) (string, error) { return "Swag Labs", nil }

func (s *fakeStore) Locate(_ context.Context, sel string) (browser.Element, error) {
	if !s.present(sel) {
		return nil, fmt.Errorf("locate %s: timeout", sel)
	}
	return &fakeElement{store: s, sel: sel}, nil
}

func (s *fakeStore) Count(_ context.Context, sel string) (int, error) {
	switch {
	case sel == ".inventory_item" && s.onInventory():
		return s.products, nil
	case s.present(sel):
		return 1, nil
	}
	return 0, nil
}

func (s *fakeStore) WaitFor(_ context.Context, cond browser.Condition) error {
	if s.present(cond.Selector) {
		return nil
	}
	return fmt.Errorf("wait for %s: timeout", cond.Selector)
}

func (s *fakeStore) Capture(context.Context, string) error { return nil }
func (s *fakeStore) Close(context.Context) error           { return nil }

func (s *fakeStore) submit() {
	user, pass := s.fields["#user-name"], s.fields["#password"]
	switch {
	case user == "":
		s.errMsg = "Epic sadface: Username is required"
	case pass == "":
		s.errMsg = "Epic sadface: Password is required"
	case user == "locked_out_user":
		s.errMsg = "Epic sadface: Sorry, this user has been locked out."
	case user == "standard_user" && pass == "secret_sauce":
		s.url = storeURL + "/inventory.html"
		s.errMsg = ""
	default:
		s.errMsg = "Epic sadface: Username and password do not match any user in this service"
	}
}

type fakeElement struct {
	store *fakeStore
	sel   string
}

func (e *fakeElement) Click(context.Context) error {
	if e.sel == "#login-button" {
		e.store.submit()
		return nil
	}
	var i int
	if _, err := fmt.Sscanf(e.sel, "button[id^='add-to-cart'] >> nth=%d", &i); err == nil {
		e.store.added[i] = true
		e.store.cart++
	}
	return nil
}

func (e *fakeElement) Fill(_ context.Context, v string) error {
	e.store.fields[e.sel] = v
	return nil
}

func (e *fakeElement) Text(context.Context) (string, error) {
	switch e.sel {
	case "[data-test='error']":
		return e.store.errMsg, nil
	case ".shopping_cart_badge":
		return fmt.Sprint(e.store.cart), nil
	}
	return "", nil
}

func (e *fakeElement) Visible(context.Context) (bool, error) { return true, nil }

func env(store *fakeStore) *suite.Env {
	return &suite.Env{Browser: store, BaseURL: storeURL, Engine: "chrome"}
}

func TestSuitePassesAgainstHealthyStore(t *testing.T) {
	for _, tc := range sauce.Tests() {
		t.Run(tc.ID, func(t *testing.T) {
			assert.NoError(t, tc.Func(context.Background(), env(newStore(6))))
		})
	}
}

func TestInventoryProductsFailsOnMissingProducts(t *testing.T) {
	c := suite.NewCatalog()
	require.NoError(t, sauce.Register(c))
	tc, ok := c.Get("cart/inventory_products")
	require.True(t, ok)

	err := tc.Func(context.Background(), env(newStore(5)))
	var ae *suite.AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Contains(t, ae.Message, "product count")
}

func TestSuccessfulLoginFailsWhenStoreRejects(t *testing.T) {
	store := newStore(6)
	tc, _ := lookup(t, "login/successful")

	// A store that never leaves the login page.
	err := tc.Func(context.Background(), &suite.Env{Browser: &rejectingStore{store}, BaseURL: storeURL})
	var ae *suite.AssertionError
	require.ErrorAs(t, err, &ae)
}

func TestDriverErrorsAreNotAssertions(t *testing.T) {
	tc, _ := lookup(t, "cart/add_single")
	err := tc.Func(context.Background(), &suite.Env{Browser: &brokenStore{newStore(6)}, BaseURL: storeURL})
	require.Error(t, err)
	var ae *suite.AssertionError
	assert.False(t, errors.As(err, &ae))
}

func TestTagsAndIDs(t *testing.T) {
	c := suite.NewCatalog()
	require.NoError(t, sauce.Register(c))

	sel, err := c.Select([]string{"login/*"}, []string{"smoke"})
	require.NoError(t, err)
	assert.Len(t, sel.Tests, 6)

	sel, err = c.Select(nil, []string{"regression"})
	require.NoError(t, err)
	assert.Len(t, sel.Tests, 3)
}

func lookup(t *testing.T, id string) (suite.Test, *suite.Catalog) {
	t.Helper()
	c := suite.NewCatalog()
	require.NoError(t, sauce.Register(c))
	tc, ok := c.Get(id)
	require.True(t, ok)
	return tc, c
}

// rejectingStore ignores the login button.
type rejectingStore struct{ *fakeStore }

func (s *rejectingStore) Locate(ctx context.Context, sel string) (browser.Element, error) {
	el, err := s.fakeStore.Locate(ctx, sel)
	if err != nil || sel != "#login-button" {
		return el, err
	}
	return &inertElement{}, nil
}

type inertElement struct{}

func (inertElement) Click(context.Context) error           { return nil }
func (inertElement) Fill(context.Context, string) error    { return nil }
func (inertElement) Text(context.Context) (string, error)  { return "", nil }
func (inertElement) Visible(context.Context) (bool, error) { return true, nil }

// brokenStore fails navigation as a crashed browser would.
type brokenStore struct{ *fakeStore }

func (s *brokenStore) Navigate(context.Context, string) error {
	return browser.ErrSessionLost
}
