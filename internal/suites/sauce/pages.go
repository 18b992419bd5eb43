package sauce

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/xbrowse/internal/browser"
)

// Selectors for the saucedemo login page.
const (
	selUsername    = "#user-name"
	selPassword    = "#password"
	selLoginButton = "#login-button"
	selLoginError  = "[data-test='error']"
)

// Selectors for the saucedemo inventory page.
const (
	selInventory = "#inventory_container"
	selProduct   = ".inventory_item"
	selCartBadge = ".shopping_cart_badge"
	selAddToCart = "button[id^='add-to-cart']"
)

// presenceWait bounds checks for elements that may legitimately be absent.
const presenceWait = 3 * time.Second

// LoginPage drives the saucedemo login form.
type LoginPage struct {
	page browser.Page
}

func NewLoginPage(p browser.Page) LoginPage { return LoginPage{page: p} }

// Open navigates to the login page at baseURL.
func (l LoginPage) Open(ctx context.Context, baseURL string) error {
	return l.page.Navigate(ctx, baseURL)
}

// Login fills in the credentials and submits the form.
func (l LoginPage) Login(ctx context.Context, username, password string) error {
	if err := fill(ctx, l.page, selUsername, username); err != nil {
		return err
	}
	if err := fill(ctx, l.page, selPassword, password); err != nil {
		return err
	}
	return click(ctx, l.page, selLoginButton)
}

// ErrorDisplayed reports whether the login error banner is shown.
func (l LoginPage) ErrorDisplayed(ctx context.Context) bool {
	return visible(ctx, l.page, selLoginError)
}

// ErrorMessage returns the text of the login error banner.
func (l LoginPage) ErrorMessage(ctx context.Context) (string, error) {
	return text(ctx, l.page, selLoginError)
}

// InventoryPage drives the product listing shown after login.
type InventoryPage struct {
	page browser.Page
}

func NewInventoryPage(p browser.Page) InventoryPage { return InventoryPage{page: p} }

// Displayed reports whether the inventory container is visible.
func (i InventoryPage) Displayed(ctx context.Context) bool {
	return visible(ctx, i.page, selInventory)
}

// ProductCount returns the number of products listed.
func (i InventoryPage) ProductCount(ctx context.Context) (int, error) {
	return i.page.Count(ctx, selProduct)
}

// AddToCart clicks the add-to-cart button of the product at index.
func (i InventoryPage) AddToCart(ctx context.Context, index int) error {
	return click(ctx, i.page, fmt.Sprintf("%s >> nth=%d", selAddToCart, index))
}

// CartCount returns the number shown on the cart badge, 0 without a badge.
func (i InventoryPage) CartCount(ctx context.Context) (int, error) {
	n, err := i.page.Count(ctx, selCartBadge)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	raw, err := text(ctx, i.page, selCartBadge)
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("cart badge %q is not a number: %w", raw, err)
	}
	return count, nil
}

func fill(ctx context.Context, p browser.Page, selector, value string) error {
	el, err := p.Locate(ctx, selector)
	if err != nil {
		return err
	}
	return el.Fill(ctx, value)
}

func click(ctx context.Context, p browser.Page, selector string) error {
	el, err := p.Locate(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func text(ctx context.Context, p browser.Page, selector string) (string, error) {
	el, err := p.Locate(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.Text(ctx)
}

func visible(ctx context.Context, p browser.Page, selector string) bool {
	err := p.WaitFor(ctx, browser.Condition{
		Selector: selector,
		State:    browser.StateVisible,
		Timeout:  presenceWait,
	})
	return err == nil
}
