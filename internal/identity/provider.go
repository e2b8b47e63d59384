// Package identity implements the OAuth2 Authorization Code + PKCE identity provider the client logs in with.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"example.com/fitness/internal/auth"
	"example.com/fitness/internal/observability"
)

var (
	// ErrNotLoggedIn is returned by Refresh when there is no token to refresh.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrRefreshTokenExpired marks a refresh the authorization server refused.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrNoAuthorizer is returned by LogIn when no Authorizer was configured.
	ErrNoAuthorizer = errors.New("no authorizer configured")
)

// State is the provider's current token and its decoded claims. A zero State means logged out.
type State struct {
	Token  string
	Claims map[string]any
}

// Authenticated reports whether the state carries a token.
func (s State) Authenticated() bool {
	return s.Token != ""
}

// Notifier is the reactive half of the provider: it pushes State on every change and on every Emit.
type Notifier interface {
	Subscribe(fn func(State)) (unsubscribe func())
}

// Provider is the identity capability the application consumes.
type Provider interface {
	Notifier
	Current() State
	LogIn(ctx context.Context) error
	LogOut(ctx context.Context) error
}

// Authorizer drives the user-agent half of the authorization code flow and returns the code.
type Authorizer interface {
	Authorize(ctx context.Context, authURL, state string) (code string, err error)
}

// RecoveryFunc runs when the refresh token can no longer be used. It must at least start re-authentication.
type RecoveryFunc func(ctx context.Context, p *PKCEProvider) error

// ReLogin is the default recovery action.
func ReLogin(ctx context.Context, p *PKCEProvider) error {
	return p.LogIn(ctx)
}

// Config describes the authorization server and this public client.
type Config struct {
	ClientID              string
	AuthorizationEndpoint string
	TokenEndpoint         string
	RedirectURI           string
	Scopes                []string
	// RefreshSkew is how long before expiry Watch refreshes the access token.
	RefreshSkew          time.Duration
	OnRefreshTokenExpire RecoveryFunc
}

// Option configures optional behaviour for the PKCEProvider.
type Option func(*PKCEProvider)

// WithLogger overrides the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *PKCEProvider) { p.logger = logger }
}

// WithAuthorizer sets the user-agent driver used by LogIn.
func WithAuthorizer(a Authorizer) Option {
	return func(p *PKCEProvider) { p.authorizer = a }
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(p *PKCEProvider) { p.httpClient = c }
}

// WithRetryInterval sets how long Watch waits after a failed refresh.
func WithRetryInterval(d time.Duration) Option {
	return func(p *PKCEProvider) { p.retryInterval = d }
}

// PKCEProvider logs a user in with the authorization code flow secured by PKCE (RFC 7636)
// and keeps the access token fresh with the refresh token.
type PKCEProvider struct {
	oauth         *oauth2.Config
	authorizer    Authorizer
	recoverFn     RecoveryFunc
	skew          time.Duration
	retryInterval time.Duration
	httpClient    *http.Client
	logger        *zap.Logger
	now           func() time.Time

	mu        sync.Mutex
	token     *oauth2.Token
	claims    map[string]any
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(State)
}

// NewPKCEProvider constructs a provider. It starts logged out.
func NewPKCEProvider(cfg Config, opts ...Option) *PKCEProvider {
	p := &PKCEProvider{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthorizationEndpoint,
				TokenURL:  cfg.TokenEndpoint,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
		},
		recoverFn:     cfg.OnRefreshTokenExpire,
		skew:          cfg.RefreshSkew,
		retryInterval: 30 * time.Second,
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	if p.recoverFn == nil {
		p.recoverFn = ReLogin
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the latest state.
func (p *PKCEProvider) Current() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *PKCEProvider) stateLocked() State {
	if p.token == nil {
		return State{}
	}
	claims := make(map[string]any, len(p.claims))
	for k, v := range p.claims {
		claims[k] = v
	}
	return State{Token: p.token.AccessToken, Claims: claims}
}

// Subscribe registers fn for every emission. The returned func removes it.
func (p *PKCEProvider) Subscribe(fn func(State)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners = append(p.listeners, listener{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

// Emit pushes the current state to every subscriber in subscription order, whether or not it changed.
func (p *PKCEProvider) Emit() {
	p.mu.Lock()
	state := p.stateLocked()
	listeners := append([]listener(nil), p.listeners...)
	p.mu.Unlock()

	for _, l := range listeners {
		l.fn(state)
	}
}

// LogIn runs the authorization code flow and exchanges the code with the PKCE verifier.
func (p *PKCEProvider) LogIn(ctx context.Context) error {
	if p.authorizer == nil {
		return ErrNoAuthorizer
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	authURL := p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	code, err := p.authorizer.Authorize(ctx, authURL, state)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}

	token, err := p.oauth.Exchange(p.clientContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	p.setToken(token)
	p.logger.Info("login completed", zap.Time("expires_at", token.Expiry))
	return nil
}

// LogOut forgets the tokens and emits the logged-out state.
func (p *PKCEProvider) LogOut(context.Context) error {
	p.mu.Lock()
	p.token = nil
	p.claims = nil
	p.mu.Unlock()

	p.logger.Info("logged out")
	p.Emit()
	return nil
}

// Refresh trades the refresh token for a new access token. When the authorization server
// refuses the refresh token the configured recovery action runs instead. A result that
// arrives after a logout or a newer login is discarded.
func (p *PKCEProvider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	current := p.token
	p.mu.Unlock()

	if current == nil {
		return ErrNotLoggedIn
	}
	if current.RefreshToken == "" {
		return p.recoverSession(ctx, ErrRefreshTokenExpired)
	}

	// An empty access token forces the token source to hit the token endpoint.
	next, err := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			if !p.isCurrent(current) {
				return nil
			}
			return p.recoverSession(ctx, fmt.Errorf("%w: %v", ErrRefreshTokenExpired, err))
		}
		return fmt.Errorf("refresh token: %w", err)
	}

	if !p.replaceToken(current, next) {
		p.logger.Debug("discarding refreshed token, session changed while refreshing")
		return nil
	}
	observability.RecordTokenRefresh(p.now())
	return nil
}

// Watch refreshes the access token RefreshSkew before it expires until ctx is cancelled.
func (p *PKCEProvider) Watch(ctx context.Context) error {
	var backoff time.Duration
	for {
		p.mu.Lock()
		tok := p.token
		p.mu.Unlock()

		wait := time.Minute
		if tok != nil && !tok.Expiry.IsZero() {
			wait = tok.Expiry.Sub(p.now()) - p.skew
		}
		if wait < backoff {
			wait = backoff
		}
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if tok == nil || tok.Expiry.IsZero() {
			continue
		}
		if err := p.Refresh(ctx); err != nil {
			p.logger.Warn("token refresh failed", zap.Error(err))
			backoff = p.retryInterval
			continue
		}
		backoff = 0
	}
}

func (p *PKCEProvider) recoverSession(ctx context.Context, cause error) error {
	p.logger.Warn("refresh token unusable, running recovery", zap.Error(cause))
	if err := p.recoverFn(ctx, p); err != nil {
		return fmt.Errorf("recover session after %v: %w", cause, err)
	}
	return nil
}

func (p *PKCEProvider) isCurrent(token *oauth2.Token) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token == token
}

func (p *PKCEProvider) setToken(token *oauth2.Token) {
	claims := p.tokenClaims(token)

	p.mu.Lock()
	p.token = token
	p.claims = claims
	p.mu.Unlock()

	p.Emit()
}

// replaceToken stores token only while expected is still the current token.
func (p *PKCEProvider) replaceToken(expected, token *oauth2.Token) bool {
	claims := p.tokenClaims(token)

	p.mu.Lock()
	if p.token != expected {
		p.mu.Unlock()
		return false
	}
	p.token = token
	p.claims = claims
	p.mu.Unlock()

	p.Emit()
	return true
}

func (p *PKCEProvider) tokenClaims(token *oauth2.Token) map[string]any {
	claims, fromAccessToken := decodeTokenClaims(token)
	if claims == nil {
		p.logger.Warn("token carries no decodable claims")
		return map[string]any{}
	}
	// Without expires_in the access token's own exp claim drives Watch.
	if fromAccessToken && token.Expiry.IsZero() && !claims.ExpiresAt.IsZero() {
		token.Expiry = claims.ExpiresAt
	}
	return claims.Raw
}

// decodeTokenClaims prefers the access token payload and falls back to the ID token for opaque access tokens.
func decodeTokenClaims(token *oauth2.Token) (*auth.Claims, bool) {
	if claims, err := auth.DecodeClaims(token.AccessToken); err == nil {
		return claims, true
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		if claims, err := auth.DecodeClaims(idToken); err == nil {
			return claims, false
		}
	}
	return nil, false
}

func (p *PKCEProvider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}
