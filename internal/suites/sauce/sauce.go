// Package sauce is the sample suite run against the saucedemo.com store:
// login and shopping cart checks written against page objects.
package sauce

import (
	"context"
	"strings"

	"github.com/seantiz/xbrowse/internal/suite"
)

// DefaultBaseURL is the public demo store the suite targets.
const DefaultBaseURL = "https://www.saucedemo.com"

const (
	standardUser = "standard_user"
	lockedUser   = "locked_out_user"
	password     = "secret_sauce"
)

// Tests returns the suite's tests.
func Tests() []suite.Test {
	login := []string{"smoke", "ui"}
	return []suite.Test{
		{
			ID:          "login/successful",
			Tags:        login,
			Description: "valid credentials land on the inventory page",
			Func:        testSuccessfulLogin,
		},
		{
			ID:          "login/invalid_credentials",
			Tags:        login,
			Description: "a wrong password shows a mismatch error",
			Func:        testInvalidCredentials,
		},
		{
			ID:          "login/locked_user",
			Tags:        login,
			Description: "a locked out user is refused",
			Func:        testLockedUser,
		},
		{
			ID:          "login/empty_username",
			Tags:        login,
			Description: "a missing username is reported as required",
			Func:        emptyFields("", password),
		},
		{
			ID:          "login/empty_password",
			Tags:        login,
			Description: "a missing password is reported as required",
			Func:        emptyFields(standardUser, ""),
		},
		{
			ID:          "login/empty_both",
			Tags:        login,
			Description: "an empty form is reported as required",
			Func:        emptyFields("", ""),
		},
		{
			ID:          "cart/add_single",
			Tags:        []string{"regression"},
			Description: "adding one product increments the cart badge",
			Func:        testAddSingleItem,
		},
		{
			ID:          "cart/add_multiple",
			Tags:        []string{"regression"},
			Description: "adding three products shows three in the cart",
			Func:        testAddMultipleItems,
		},
		{
			ID:          "cart/inventory_products",
			Tags:        []string{"regression", "smoke"},
			Description: "the inventory lists all six products",
			Func:        testInventoryProducts,
		},
	}
}

// Register adds the suite to c.
func Register(c *suite.Catalog) error {
	return c.Register(Tests()...)
}

func baseURL(env *suite.Env) string {
	if env.BaseURL != "" {
		return env.BaseURL
	}
	return DefaultBaseURL
}

func testSuccessfulLogin(ctx context.Context, env *suite.Env) error {
	login := NewLoginPage(env.Browser)
	if err := login.Open(ctx, baseURL(env)); err != nil {
		return err
	}
	if err := login.Login(ctx, standardUser, password); err != nil {
		return err
	}
	if err := suite.Assert(NewInventoryPage(env.Browser).Displayed(ctx), "login failed: not on inventory page"); err != nil {
		return err
	}
	return suite.Contains(env.Browser.URL(), "inventory.html", "url after login")
}

func testInvalidCredentials(ctx context.Context, env *suite.Env) error {
	return expectLoginError(ctx, env, standardUser, "wrong_password", "Username and password do not match")
}

func testLockedUser(ctx context.Context, env *suite.Env) error {
	return expectLoginError(ctx, env, lockedUser, password, "Sorry, this user has been locked out")
}

func emptyFields(username, pass string) suite.Func {
	return func(ctx context.Context, env *suite.Env) error {
		login := NewLoginPage(env.Browser)
		if err := login.Open(ctx, baseURL(env)); err != nil {
			return err
		}
		if err := login.Login(ctx, username, pass); err != nil {
			return err
		}
		if err := suite.Assert(login.ErrorDisplayed(ctx), "error message not displayed"); err != nil {
			return err
		}
		msg, err := login.ErrorMessage(ctx)
		if err != nil {
			return err
		}
		return suite.Contains(strings.ToLower(msg), "required", "login error")
	}
}

func expectLoginError(ctx context.Context, env *suite.Env, username, pass, want string) error {
	login := NewLoginPage(env.Browser)
	if err := login.Open(ctx, baseURL(env)); err != nil {
		return err
	}
	if err := login.Login(ctx, username, pass); err != nil {
		return err
	}
	if err := suite.Assert(login.ErrorDisplayed(ctx), "error message not displayed"); err != nil {
		return err
	}
	msg, err := login.ErrorMessage(ctx)
	if err != nil {
		return err
	}
	return suite.Contains(msg, want, "login error")
}

// loggedIn opens the store and signs in as the standard user.
func loggedIn(ctx context.Context, env *suite.Env) (InventoryPage, error) {
	login := NewLoginPage(env.Browser)
	inv := NewInventoryPage(env.Browser)
	if err := login.Open(ctx, baseURL(env)); err != nil {
		return inv, err
	}
	if err := login.Login(ctx, standardUser, password); err != nil {
		return inv, err
	}
	return inv, suite.Assert(inv.Displayed(ctx), "login failed: not on inventory page")
}

func testAddSingleItem(ctx context.Context, env *suite.Env) error {
	inv, err := loggedIn(ctx, env)
	if err != nil {
		return err
	}
	before, err := inv.CartCount(ctx)
	if err != nil {
		return err
	}
	if err := inv.AddToCart(ctx, 0); err != nil {
		return err
	}
	after, err := inv.CartCount(ctx)
	if err != nil {
		return err
	}
	return suite.Equal(after, before+1, "cart count")
}

func testAddMultipleItems(ctx context.Context, env *suite.Env) error {
	inv, err := loggedIn(ctx, env)
	if err != nil {
		return err
	}
	for i := range 3 {
		if err := inv.AddToCart(ctx, i); err != nil {
			return err
		}
	}
	count, err := inv.CartCount(ctx)
	if err != nil {
		return err
	}
	return suite.Equal(count, 3, "cart count")
}

func testInventoryProducts(ctx context.Context, env *suite.Env) error {
	inv, err := loggedIn(ctx, env)
	if err != nil {
		return err
	}
	n, err := inv.ProductCount(ctx)
	if err != nil {
		return err
	}
	if err := suite.Assert(n > 0, "no products displayed on inventory page"); err != nil {
		return err
	}
	return suite.Equal(n, 6, "product count")
}
