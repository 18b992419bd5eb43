// Package session owns the lifecycle of browser sessions: launch under a
// retry policy, configuration, health checks and teardown.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
)

// Config is the per-session configuration applied at acquire time.
type Config struct {
	Headless     bool
	Viewport     browser.Viewport
	ImplicitWait time.Duration

	// LaunchTimeout bounds each launch attempt. Zero leaves it to the
	// driver.
	LaunchTimeout time.Duration

	Args  []string
	Prefs map[string]any
}

// Session is one live browser owned by a single worker. Its state moves
// launching -> ready <-> busy -> terminating -> closed | failed.
type Session struct {
	ID        string
	Engine    string
	Config    Config
	CreatedAt time.Time

	mu       sync.Mutex
	state    string
	handle   browser.Handle
	attempts int
	unusable string
}

// State returns the current lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Attempts returns how many launch attempts acquisition took.
func (s *Session) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Page returns the capability surface test bodies drive.
func (s *Session) Page() browser.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Version returns the engine version reported by the browser.
func (s *Session) Version() string {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return ""
	}
	return h.Version()
}

// MarkBusy moves a ready session to busy before a test body runs.
func (s *Session) MarkBusy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(model.SessionBusy)
}

// MarkIdle moves a busy session back to ready.
func (s *Session) MarkIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(model.SessionReady)
}

// MarkUnusable flags the session for forced teardown on release, after a
// timeout or a crash.
func (s *Session) MarkUnusable(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unusable == "" {
		s.unusable = reason
	}
}

// Unusable returns the reason the session was flagged, or "".
func (s *Session) Unusable() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unusable
}

// Capture takes a screenshot of the session's page.
func (s *Session) Capture(ctx context.Context, path string) error {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h == nil {
		return fmt.Errorf("capture: %w", ErrNotUsable)
	}
	return h.Capture(ctx, path)
}

// transition must be called with s.mu held.
func (s *Session) transition(to string) error {
	if !model.ValidSessionTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	return nil
}
