// Package session holds the process-wide authentication state and adapts identity provider
// notifications into it.
package session

import (
	"sync"

	"go.uber.org/zap"

	"example.com/fitness/internal/observability"
)

// Claims are the decoded identity claims of the current token.
type Claims map[string]any

// Subject returns the "sub" claim, or "" when absent.
func (c Claims) Subject() string {
	sub, _ := c["sub"].(string)
	return sub
}

func (c Claims) clone() Claims {
	if c == nil {
		return nil
	}
	out := make(Claims, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Session is an immutable snapshot of the authentication state.
// User is non-nil exactly when Token is non-empty; AuthReady implies a token.
type Session struct {
	Token     string
	User      Claims
	AuthReady bool
}

// Authenticated reports whether the session carries a credential.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Listener receives every session change.
type Listener func(Session)

// Option configures the Store.
type Option func(*Store)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the single-writer session store. Writes go through ApplyToken and Logout only.
//
// Listeners are invoked outside the lock, in write order, so a listener may read the store
// or write to it again. A write issued from inside a listener is delivered after the
// current round of notifications completes.
type Store struct {
	logger *zap.Logger

	mu         sync.Mutex
	current    Session
	listeners  []subscription
	nextID     int
	pending    []Session
	delivering bool
}

type subscription struct {
	id int
	fn Listener
}

// NewStore returns a store in the logged-out state.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Session {
	out := s.current
	out.User = s.current.User.clone()
	return out
}

// Subscribe registers l for future changes. Listeners run in subscription order.
// The returned func cancels the subscription.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: l})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ApplyToken stores token and user and marks the session ready. A token equal to the stored
// one is ignored and nobody is notified. It reports whether the session changed.
func (s *Store) ApplyToken(token string, user Claims) bool {
	if token == "" {
		observability.RecordSessionWrite("ignored")
		return false
	}

	s.mu.Lock()
	if s.current.Token == token {
		s.mu.Unlock()
		observability.RecordSessionWrite("duplicate")
		return false
	}
	if user == nil {
		user = Claims{}
	}
	s.current = Session{Token: token, User: user.clone(), AuthReady: true}
	s.pending = append(s.pending, s.snapshotLocked())
	s.logger.Info("session token applied", zap.String("subject", user.Subject()))
	observability.RecordSessionWrite("applied")
	s.deliverLocked()
	return true
}

// Logout clears the credential and resets readiness. Subscribers are always notified.
func (s *Store) Logout() {
	s.mu.Lock()
	s.current = Session{}
	s.pending = append(s.pending, Session{})
	s.logger.Info("session cleared")
	observability.RecordSessionWrite("logout")
	s.deliverLocked()
}

// deliverLocked drains pending notifications. It is entered with s.mu held and releases it.
func (s *Store) deliverLocked() {
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending = s.pending[1:]
		listeners := append([]subscription(nil), s.listeners...)
		s.mu.Unlock()

		for _, sub := range listeners {
			sub.fn(next)
		}

		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}
