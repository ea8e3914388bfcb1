// Package session keeps an authenticated session alive. It owns a single
// cancellable timer that refreshes the token set shortly before expiry,
// replacing the timer whenever new tokens arrive and cancelling it on
// logout, so refresh attempts never overlap.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/VectorInstitute/aieng-auth/internal/auth"
	"github.com/VectorInstitute/aieng-auth/internal/metrics"
	"github.com/VectorInstitute/aieng-auth/internal/store"
)

// refreshTimeout bounds the network round-trip of a timer-driven refresh.
const refreshTimeout = 30 * time.Second

// Session wires the OAuth client and token manager to a proactive refresh
// timer.
type Session struct {
	client  *auth.Client
	manager *auth.Manager
	buffer  time.Duration
	logger  *log.Logger

	onRefresh func(*store.Tokens)
	onError   func(error)

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
}

// Option configures a Session.
type Option func(*Session)

// WithRefreshBuffer sets how far before expiry the refresh fires.
// Non-positive values keep the default.
func WithRefreshBuffer(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.buffer = d
		}
	}
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// OnRefresh registers a hook called with every refreshed token set.
func OnRefresh(fn func(*store.Tokens)) Option {
	return func(s *Session) { s.onRefresh = fn }
}

// OnError registers a hook called when a timer-driven refresh fails.
func OnError(fn func(error)) Option {
	return func(s *Session) { s.onError = fn }
}

// New creates a Session over client and manager.
func New(client *auth.Client, manager *auth.Manager, opts ...Option) *Session {
	s := &Session{
		client:  client,
		manager: manager,
		buffer:  auth.DefaultRefreshBuffer,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Establish stores a fresh token set and schedules the next proactive
// refresh, cancelling any previously scheduled one.
func (s *Session) Establish(tokens *store.Tokens) error {
	if err := s.manager.SetTokens(tokens); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleLocked()
	return nil
}

// scheduleLocked replaces the timer handle with one firing when the access
// token enters the refresh window. Expired or absent tokens schedule
// nothing; that is the error path's job. Callers hold s.mu.
func (s *Session) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.closed {
		return
	}

	remaining := s.manager.TimeUntilExpiration()
	if remaining <= 0 {
		return
	}

	delay := remaining - s.buffer
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, s.refresh)
}

// refresh runs when the timer fires: it refreshes the token set, stores the
// result and reschedules. A failed refresh clears the session.
func (s *Session) refresh() {
	metrics.RefreshTimerFires.Inc()

	refreshToken := s.manager.RefreshToken()

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	tokens, err := s.client.RefreshTokens(ctx, refreshToken)
	if err != nil {
		s.logger.Printf("session: proactive refresh failed: %v", err)
		if clearErr := s.manager.ClearTokens(); clearErr != nil {
			s.logger.Printf("session: clearing tokens after failed refresh: %v", clearErr)
		}
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	if err := s.manager.SetTokens(tokens); err != nil {
		s.logger.Printf("session: storing refreshed tokens: %v", err)
		if s.onError != nil {
			s.onError(err)
		}
		return
	}

	if s.onRefresh != nil {
		s.onRefresh(tokens)
	}

	s.mu.Lock()
	s.scheduleLocked()
	s.mu.Unlock()
}

// Authenticated reports whether a valid (unexpired) token set is held.
func (s *Session) Authenticated() bool {
	return s.manager.IsTokenValid(0)
}

// Logout revokes the held tokens best-effort, clears the store and cancels
// the refresh timer. Logout always succeeds locally; only a storage failure
// on the clear itself is returned.
func (s *Session) Logout(ctx context.Context) error {
	if access := s.manager.AccessToken(); access != "" {
		s.client.RevokeToken(ctx, access)
	}
	if refresh := s.manager.RefreshToken(); refresh != "" {
		s.client.RevokeToken(ctx, refresh)
	}

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	return s.manager.ClearTokens()
}

// Close cancels the refresh timer and marks the session unusable for
// further scheduling.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
