package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
	"github.com/seantiz/xbrowse/internal/retry"
)

// gracefulCloseTimeout bounds the graceful close attempted by Release.
const gracefulCloseTimeout = 10 * time.Second

// Manager establishes and tears down sessions through a browser driver.
// It is safe for concurrent use; each Session it returns is not.
type Manager struct {
	driver browser.Driver
	policy retry.Policy
	logger *slog.Logger

	mu   sync.Mutex
	live map[string]*Session
}

// NewManager creates a session manager. A policy without a Retryable
// classifier uses Classify.
func NewManager(driver browser.Driver, policy retry.Policy, logger *slog.Logger) *Manager {
	if policy.Retryable == nil {
		policy.Retryable = Classify
	}
	return &Manager{
		driver: driver,
		policy: policy,
		logger: logger.With("component", "session"),
		live:   make(map[string]*Session),
	}
}

// Acquire launches a browser for desc and applies cfg to it. Transient
// launch failures are retried under the manager's policy; any handle
// produced by a failed attempt is reclaimed before the next one.
func (m *Manager) Acquire(ctx context.Context, desc browser.EngineDescriptor, cfg Config) (*Session, error) {
	if !desc.Available {
		return nil, &SessionError{
			Engine: desc.Name,
			Err:    fmt.Errorf("%w: %s", browser.ErrEngineUnavailable, desc.Reason),
		}
	}

	start := time.Now()
	s := &Session{
		ID:        model.NewID(),
		Engine:    desc.Name,
		Config:    cfg,
		CreatedAt: start,
		state:     model.SessionLaunching,
	}
	log := m.logger.With("session_id", s.ID, "engine", desc.Name)

	launch := func(ctx context.Context, attempt int) error {
		actx := ctx
		if cfg.LaunchTimeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, cfg.LaunchTimeout)
			defer cancel()
		}

		h, err := m.driver.Launch(actx, desc, browser.LaunchOptions{
			Headless: cfg.Headless,
			Viewport: cfg.Viewport,
			Args:     cfg.Args,
			Prefs:    cfg.Prefs,
			Timeout:  cfg.LaunchTimeout,
		})
		if err != nil {
			if h != nil {
				m.reclaim(log, h)
			}
			launchAttemptsTotal.WithLabelValues(desc.Name, attemptFailed).Inc()
			return err
		}

		err = h.Configure(ctx, browser.Settings{
			Viewport:     cfg.Viewport,
			Headless:     cfg.Headless,
			ImplicitWait: cfg.ImplicitWait,
		})
		if err != nil {
			m.reclaim(log, h)
			launchAttemptsTotal.WithLabelValues(desc.Name, attemptFailed).Inc()
			return &configureError{err: err}
		}

		launchAttemptsTotal.WithLabelValues(desc.Name, attemptSucceeded).Inc()
		s.mu.Lock()
		s.handle = h
		s.mu.Unlock()
		return nil
	}

	attempts, err := m.policy.Do(ctx, launch, func(err error, attempt int, wait time.Duration) {
		log.Warn("session launch failed, retrying",
			"attempt", attempt,
			"max_attempts", m.policy.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
	})
	acquireDuration.WithLabelValues(desc.Name).Observe(time.Since(start).Seconds())

	s.mu.Lock()
	s.attempts = attempts
	if err != nil {
		s.state = model.SessionFailed
		s.mu.Unlock()
		log.Error("session launch failed", "attempts", attempts, "error", err)
		return nil, &SessionError{
			Engine:    desc.Name,
			Attempts:  attempts,
			Transient: Classify(err),
			Err:       err,
		}
	}
	terr := s.transition(model.SessionReady)
	s.mu.Unlock()
	if terr != nil {
		return nil, terr
	}

	m.mu.Lock()
	m.live[s.ID] = s
	m.mu.Unlock()
	activeSessions.Inc()

	log.Info("session ready", "attempts", attempts, "version", s.Version(), "duration_ms", time.Since(start).Milliseconds())
	return s, nil
}

// reclaim kills a handle left behind by a failed attempt.
func (m *Manager) reclaim(log *slog.Logger, h browser.Handle) {
	if err := h.Kill(); err != nil {
		log.Warn("reclaim failed launch", "error", err)
	}
}

// Release tears a session down. Sessions flagged unusable are killed;
// others are closed gracefully with a forced fallback. A teardown problem
// is returned as a *TeardownWarning and never affects the test outcome.
// Releasing a nil, closed or failed session is a no-op.
func (m *Manager) Release(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	if s.state == model.SessionClosed || s.state == model.SessionFailed {
		s.mu.Unlock()
		return nil
	}
	if err := s.transition(model.SessionTerminating); err != nil {
		s.mu.Unlock()
		return err
	}
	h := s.handle
	reason := s.unusable
	s.mu.Unlock()

	defer m.untrack(s)
	log := m.logger.With("session_id", s.ID, "engine", s.Engine)

	var warn *TeardownWarning
	if reason != "" {
		if err := h.Kill(); err != nil {
			warn = &TeardownWarning{SessionID: s.ID, Engine: s.Engine, Err: fmt.Errorf("forced teardown after %s: %w", reason, err)}
		}
		log.Debug("session killed", "reason", reason)
	} else {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gracefulCloseTimeout)
		err := h.Close(cctx)
		cancel()
		if err != nil {
			warn = &TeardownWarning{SessionID: s.ID, Engine: s.Engine, Err: err}
			if kerr := h.Kill(); kerr != nil {
				warn.Err = errors.Join(err, kerr)
			} else {
				warn.Reclaimed = true
			}
		}
	}

	s.mu.Lock()
	final := model.SessionClosed
	if warn != nil && !warn.Reclaimed {
		final = model.SessionFailed
	}
	_ = s.transition(final)
	s.mu.Unlock()

	if warn != nil {
		teardownFailuresTotal.WithLabelValues(s.Engine).Inc()
		log.Warn("session teardown incomplete", "reclaimed", warn.Reclaimed, "error", warn.Err)
		return warn
	}
	log.Debug("session closed")
	return nil
}

func (m *Manager) untrack(s *Session) {
	m.mu.Lock()
	_, ok := m.live[s.ID]
	delete(m.live, s.ID)
	m.mu.Unlock()
	if ok {
		activeSessions.Dec()
	}
}

// HealthCheck pings the browser behind s. A lost browser marks the session
// unusable.
func (m *Manager) HealthCheck(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("health check: %w", ErrNotUsable)
	}
	s.mu.Lock()
	state, h := s.state, s.handle
	s.mu.Unlock()

	if state != model.SessionReady && state != model.SessionBusy {
		return fmt.Errorf("health check %s session in state %s: %w", s.Engine, state, ErrNotUsable)
	}
	if err := h.Ping(ctx); err != nil {
		if errors.Is(err, browser.ErrSessionLost) {
			s.MarkUnusable("browser lost")
		}
		return fmt.Errorf("health check %s session: %w", s.Engine, err)
	}
	return nil
}

// Live returns the number of sessions acquired and not yet released.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// ReleaseAll releases every live session, for shutdown.
func (m *Manager) ReleaseAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.live))
	for _, s := range m.live {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if err := m.Release(ctx, s); err != nil {
			m.logger.Warn("release on shutdown", "session_id", s.ID, "error", err)
		}
	}
}
