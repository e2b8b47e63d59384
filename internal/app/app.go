// Package app binds the route surface to the session store and the activity controllers.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"example.com/fitness/internal/domain"
	"example.com/fitness/internal/session"
	"example.com/fitness/internal/view"
)

// SessionStore is the part of the session store the app reads and resets.
type SessionStore interface {
	Snapshot() session.Session
	Subscribe(session.Listener) func()
	Logout()
}

// Creator records new activities.
type Creator interface {
	Create(ctx context.Context, draft domain.Draft) (*domain.Activity, error)
}

// Authenticator is the identity provider's log-out action.
type Authenticator interface {
	LogOut(ctx context.Context) error
}

// Option configures the App.
type Option func(*App)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithAuthenticator makes Logout end the identity provider session too.
func WithAuthenticator(auth Authenticator) Option {
	return func(a *App) { a.auth = auth }
}

// App tracks the current route and keeps exactly the controller for that route mounted.
type App struct {
	store   SessionStore
	list    *view.ListController
	detail  *view.DetailController
	creator Creator
	auth    Authenticator
	logger  *zap.Logger

	mu          sync.Mutex
	current     Route
	unsubscribe func()
}

// New wires the app. It starts on the root route and watches the store for logouts.
func New(store SessionStore, list *view.ListController, detail *view.DetailController, creator Creator, opts ...Option) *App {
	a := &App{
		store:   store,
		list:    list,
		detail:  detail,
		creator: creator,
		logger:  zap.NewNop(),
		current: Route{Name: RouteRoot},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.unsubscribe = store.Subscribe(a.onSession)
	return a
}

// Close stops watching the store and unmounts both controllers.
func (a *App) Close() {
	a.unsubscribe()
	a.list.Unmount()
	a.detail.Unmount()
}

// Current returns the active route.
func (a *App) Current() Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Navigate resolves path, applies the root redirect and the auth gate, and activates the
// controller bound to the resulting route. It returns the route actually shown.
func (a *App) Navigate(ctx context.Context, path string) (Route, error) {
	target, err := Resolve(path)
	if err != nil {
		return a.Current(), err
	}

	ready := a.store.Snapshot().AuthReady
	switch {
	case target.Name == RouteRoot && ready:
		target = Route{Name: RouteList}
	case target.Name == RouteRoot:
		target = Route{Name: RouteLogin}
	case !ready && (target.Name == RouteList || target.Name == RouteDetail):
		a.logger.Debug("route requires a session", zap.String("path", target.Path()))
		target = Route{Name: RouteLogin}
	}

	a.mu.Lock()
	previous := a.current
	a.current = target
	a.mu.Unlock()

	a.transition(ctx, previous, target)
	return target, nil
}

func (a *App) transition(ctx context.Context, from, to Route) {
	if from.Name == RouteList && to.Name != RouteList {
		a.list.Unmount()
	}
	if from.Name == RouteDetail && to.Name != RouteDetail {
		a.detail.Unmount()
	}

	switch to.Name {
	case RouteList:
		a.list.Mount(ctx)
	case RouteDetail:
		a.detail.Activate(ctx, to.ID)
	}
}

// Submit creates an activity and refreshes the list so it shows the new record.
func (a *App) Submit(ctx context.Context, draft domain.Draft) (*domain.Activity, error) {
	created, err := a.creator.Create(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("submit activity: %w", err)
	}
	a.list.Refresh(ctx)
	return created, nil
}

// Logout ends the provider session, clears the store and returns to the login route.
func (a *App) Logout(ctx context.Context) error {
	var providerErr error
	if a.auth != nil {
		if err := a.auth.LogOut(ctx); err != nil {
			a.logger.Warn("identity provider logout failed", zap.Error(err))
			providerErr = fmt.Errorf("provider logout: %w", err)
		}
	}
	a.store.Logout()
	return providerErr
}

func (a *App) onSession(s session.Session) {
	if s.AuthReady {
		return
	}
	a.mu.Lock()
	previous := a.current
	a.current = Route{Name: RouteLogin}
	a.mu.Unlock()

	a.logger.Info("session ended, returning to login")
	a.transition(context.Background(), previous, Route{Name: RouteLogin})
}
