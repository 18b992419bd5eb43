// Package suite defines how browser tests are written and selected. Tests
// are registered in a Catalog and selected by glob pattern over their IDs
// and by tag.
package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/seantiz/xbrowse/internal/browser"
)

// Func is a test body. It returns nil on success, an *AssertionError for a
// failed expectation, an error wrapping ErrSkipped to skip, or any other
// error when the test could not run.
type Func func(ctx context.Context, env *Env) error

// Env is what a test body receives. Browser is owned by the calling worker
// for the duration of the test.
type Env struct {
	Browser browser.Page
	BaseURL string
	Engine  string
	Logger  *slog.Logger
}

// Test is one registered browser test. IDs are slash separated, for
// example "login/successful".
type Test struct {
	ID          string
	Tags        []string
	Description string

	// Timeout overrides the run's per-test timeout when positive.
	Timeout time.Duration

	Func Func
}

// HasTag reports whether the test carries tag.
func (t Test) HasTag(tag string) bool {
	return slices.Contains(t.Tags, tag)
}

var (
	// ErrDuplicateTest is returned when a test ID is registered twice.
	ErrDuplicateTest = errors.New("duplicate test id")

	// ErrInvalidTest is returned for tests without an ID or body.
	ErrInvalidTest = errors.New("invalid test")
)

// Catalog is the set of tests available to a run. It is safe for
// concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	tests map[string]Test
	order []string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{tests: make(map[string]Test)}
}

// Register adds tests to the catalog in order.
func (c *Catalog) Register(tests ...Test) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range tests {
		if t.ID == "" || t.Func == nil {
			return fmt.Errorf("%w: %q needs an id and a body", ErrInvalidTest, t.ID)
		}
		if _, ok := c.tests[t.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTest, t.ID)
		}
		c.tests[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	return nil
}

// MustRegister is Register for package-level suite setup. It panics on
// error.
func (c *Catalog) MustRegister(tests ...Test) {
	if err := c.Register(tests...); err != nil {
		panic(err)
	}
}

// Get returns the test with the given ID.
func (c *Catalog) Get(id string) (Test, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tests[id]
	return t, ok
}

// All returns every test in registration order.
func (c *Catalog) All() []Test {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Test, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.tests[id])
	}
	return out
}

// Tags returns every tag used in the catalog, sorted.
func (c *Catalog) Tags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var tags []string
	for _, t := range c.tests {
		for _, tag := range t.Tags {
			if !slices.Contains(tags, tag) {
				tags = append(tags, tag)
			}
		}
	}
	slices.Sort(tags)
	return tags
}

// Selection is the result of Select.
type Selection struct {
	// Tests are the selected tests in registration order.
	Tests []Test

	// Missing lists the patterns that matched no registered test.
	Missing []string
}

// CheckPattern reports whether p is a valid test selection pattern.
func CheckPattern(p string) error {
	if _, err := glob.Compile(p, '/'); err != nil {
		return fmt.Errorf("invalid test pattern %q: %w", p, err)
	}
	return nil
}

// Select returns the tests whose ID matches any of patterns and that carry
// any of tags. Empty patterns select every test; empty tags apply no tag
// filter. Patterns use glob syntax with '/' as the separator, so "login/*"
// matches "login/successful" but not "login/errors/locked".
func (c *Catalog) Select(patterns, tags []string) (Selection, error) {
	matchers := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return Selection{}, fmt.Errorf("invalid test pattern %q: %w", p, err)
		}
		matchers = append(matchers, g)
	}

	all := c.All()
	var sel Selection
	matched := make([]bool, len(matchers))
	for _, t := range all {
		if len(matchers) > 0 {
			hit := false
			for i, g := range matchers {
				if g.Match(t.ID) {
					matched[i] = true
					hit = true
				}
			}
			if !hit {
				continue
			}
		}
		if len(tags) > 0 && !slices.ContainsFunc(tags, t.HasTag) {
			continue
		}
		sel.Tests = append(sel.Tests, t)
	}

	for i, ok := range matched {
		if !ok {
			sel.Missing = append(sel.Missing, patterns[i])
		}
	}
	return sel, nil
}
