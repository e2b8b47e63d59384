package identity

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

type stubAuthorizer struct {
	mu        sync.Mutex
	calls     int
	challenge string
	err       error
}

func (s *stubAuthorizer) Authorize(_ context.Context, authURL, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	parsed, err := url.Parse(authURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	if query.Get("state") != state {
		return "", ErrStateMismatch
	}
	if query.Get("code_challenge_method") != "S256" {
		return "", fmt.Errorf("unexpected challenge method %q", query.Get("code_challenge_method"))
	}
	s.challenge = query.Get("code_challenge")
	return "code-1", nil
}

func (s *stubAuthorizer) Challenge() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.challenge
}

func accessToken(t *testing.T, sub string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(5 * time.Minute).Unix(),
	}).SignedString([]byte("idp-secret"))
	require.NoError(t, err)
	return token
}

type tokenEndpoint struct {
	t           *testing.T
	authorizer  *stubAuthorizer
	mu          sync.Mutex
	refreshes   int
	accessToken string
	omitExpiry  bool

	// refreshGate holds refresh responses until closed. refreshStarted is signalled on arrival.
	refreshGate    chan struct{}
	refreshStarted chan struct{}
}

func (e *tokenEndpoint) Refreshes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.refreshes
}

func (e *tokenEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.NoError(e.t, r.ParseForm())
	w.Header().Set("Content-Type", "application/json")

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != e.authorizer.Challenge() || r.PostForm.Get("code") != "code-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		resp := map[string]any{
			"access_token":  e.accessToken,
			"token_type":    "Bearer",
			"expires_in":    300,
			"refresh_token": "refresh-1",
		}
		e.mu.Lock()
		if e.omitExpiry {
			delete(resp, "expires_in")
		}
		e.mu.Unlock()
		_ = json.NewEncoder(w).Encode(resp)
	case "refresh_token":
		e.mu.Lock()
		e.refreshes++
		gate, started := e.refreshGate, e.refreshStarted
		e.mu.Unlock()
		if started != nil {
			started <- struct{}{}
		}
		if gate != nil {
			<-gate
		}
		if r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token is not active"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken(e.t, "user-2"),
			"token_type":   "Bearer",
			"expires_in":   300,
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newTestProvider(t *testing.T, authorizer *stubAuthorizer, recoverFn RecoveryFunc) (*PKCEProvider, *tokenEndpoint) {
	t.Helper()
	endpoint := &tokenEndpoint{t: t, authorizer: authorizer, accessToken: accessToken(t, "user-1")}
	server := httptest.NewServer(endpoint)
	t.Cleanup(server.Close)

	provider := NewPKCEProvider(Config{
		ClientID:              "fitness-client",
		AuthorizationEndpoint: server.URL + "/auth",
		TokenEndpoint:         server.URL + "/token",
		RedirectURI:           "http://localhost:5173",
		Scopes:                []string{"openid", "offline_access"},
		OnRefreshTokenExpire:  recoverFn,
	}, WithAuthorizer(authorizer), WithHTTPClient(server.Client()))
	return provider, endpoint
}

func TestLogInExchangesCodeWithVerifier(t *testing.T) {
	authorizer := &stubAuthorizer{}
	provider, endpoint := newTestProvider(t, authorizer, nil)

	var emitted []State
	provider.Subscribe(func(s State) { emitted = append(emitted, s) })

	require.NoError(t, provider.LogIn(context.Background()))

	state := provider.Current()
	require.Equal(t, endpoint.accessToken, state.Token)
	require.Equal(t, "user-1", state.Claims["sub"])
	require.Len(t, emitted, 1)
	require.True(t, emitted[0].Authenticated())
}

func TestLogInWithoutAuthorizer(t *testing.T) {
	provider := NewPKCEProvider(Config{ClientID: "fitness-client"})
	require.ErrorIs(t, provider.LogIn(context.Background()), ErrNoAuthorizer)
	require.False(t, provider.Current().Authenticated())
}

func TestLogInPropagatesAuthorizerError(t *testing.T) {
	authorizer := &stubAuthorizer{err: errors.New("user closed the browser")}
	provider, _ := newTestProvider(t, authorizer, nil)

	err := provider.LogIn(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "user closed the browser")
	require.False(t, provider.Current().Authenticated())
}

func TestRefreshReplacesAccessToken(t *testing.T) {
	authorizer := &stubAuthorizer{}
	provider, endpoint := newTestProvider(t, authorizer, nil)
	require.NoError(t, provider.LogIn(context.Background()))

	require.NoError(t, provider.Refresh(context.Background()))
	require.Equal(t, 1, endpoint.Refreshes())
	require.Equal(t, "user-2", provider.Current().Claims["sub"])

	// The endpoint omitted a new refresh token, so the original one is kept.
	require.NoError(t, provider.Refresh(context.Background()))
	require.Equal(t, 2, endpoint.Refreshes())
}

func TestRefreshRejectedRunsRecovery(t *testing.T) {
	authorizer := &stubAuthorizer{}
	var recovered int
	provider, _ := newTestProvider(t, authorizer, func(context.Context, *PKCEProvider) error {
		recovered++
		return nil
	})
	require.NoError(t, provider.LogIn(context.Background()))

	provider.mu.Lock()
	provider.token.RefreshToken = "revoked"
	provider.mu.Unlock()

	require.NoError(t, provider.Refresh(context.Background()))
	require.Equal(t, 1, recovered)
}

func TestWatchRefreshesBeforeExpiry(t *testing.T) {
	authorizer := &stubAuthorizer{}
	provider, endpoint := newTestProvider(t, authorizer, nil)
	require.NoError(t, provider.LogIn(context.Background()))

	// Pretend the clock is past expiry until the refreshed token arrives.
	var offset atomic.Int64
	offset.Store(int64(time.Hour))
	provider.now = func() time.Time { return time.Now().Add(time.Duration(offset.Load())) }
	refreshed := make(chan struct{})
	provider.Subscribe(func(s State) {
		if s.Claims["sub"] == "user-2" {
			offset.Store(0)
			close(refreshed)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- provider.Watch(ctx) }()

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not refresh")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, 1, endpoint.Refreshes())
}

func TestRefreshAfterLogOutIsDiscarded(t *testing.T) {
	authorizer := &stubAuthorizer{}
	provider, endpoint := newTestProvider(t, authorizer, nil)
	require.NoError(t, provider.LogIn(context.Background()))

	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	endpoint.mu.Lock()
	endpoint.refreshGate, endpoint.refreshStarted = gate, started
	endpoint.mu.Unlock()

	var mu sync.Mutex
	var emitted []State
	provider.Subscribe(func(s State) {
		mu.Lock()
		emitted = append(emitted, s)
		mu.Unlock()
	})

	done := make(chan error, 1)
	go func() { done <- provider.Refresh(context.Background()) }()
	<-started

	require.NoError(t, provider.LogOut(context.Background()))
	close(gate)
	require.NoError(t, <-done)

	require.False(t, provider.Current().Authenticated())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 1)
	require.False(t, emitted[0].Authenticated())
}

func TestRefreshAfterNewLogInIsDiscarded(t *testing.T) {
	authorizer := &stubAuthorizer{}
	provider, endpoint := newTestProvider(t, authorizer, nil)
	require.NoError(t, provider.LogIn(context.Background()))

	gate := make(chan struct{})
	started := make(chan struct{}, 1)
	endpoint.mu.Lock()
	endpoint.refreshGate, endpoint.refreshStarted = gate, started
	endpoint.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- provider.Refresh(context.Background()) }()
	<-started

	require.NoError(t, provider.LogIn(context.Background()))
	close(gate)
	require.NoError(t, <-done)

	require.Equal(t, "user-1", provider.Current().Claims["sub"])
}

func TestMissingExpiresInFallsBackToExpClaim(t *testing.T) {
	authorizer := &stubAuthorizer{}
	provider, endpoint := newTestProvider(t, authorizer, nil)
	endpoint.mu.Lock()
	endpoint.omitExpiry = true
	endpoint.mu.Unlock()

	require.NoError(t, provider.LogIn(context.Background()))

	provider.mu.Lock()
	expiry := provider.token.Expiry
	provider.mu.Unlock()
	require.WithinDuration(t, time.Now().Add(5*time.Minute), expiry, 5*time.Second)
}

func TestSubscribersAreCalledInSubscriptionOrder(t *testing.T) {
	provider := NewPKCEProvider(Config{ClientID: "fitness-client"})

	var order []int
	cancels := make([]func(), 8)
	for i := range cancels {
		i := i
		cancels[i] = provider.Subscribe(func(State) { order = append(order, i) })
	}

	provider.Emit()
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, order)

	order = nil
	cancels[3]()
	cancels[3]()
	provider.Emit()
	require.Equal(t, []int{0, 1, 2, 4, 5, 6, 7}, order)
}

func TestRefreshWhenLoggedOut(t *testing.T) {
	provider, _ := newTestProvider(t, &stubAuthorizer{}, nil)
	require.ErrorIs(t, provider.Refresh(context.Background()), ErrNotLoggedIn)
}

func TestLogOutEmitsEmptyState(t *testing.T) {
	provider, _ := newTestProvider(t, &stubAuthorizer{}, nil)
	require.NoError(t, provider.LogIn(context.Background()))

	var last State
	unsubscribe := provider.Subscribe(func(s State) { last = s })
	defer unsubscribe()

	require.NoError(t, provider.LogOut(context.Background()))
	require.False(t, last.Authenticated())
	require.Nil(t, last.Claims)
}

func TestEmitRepeatsCurrentState(t *testing.T) {
	provider, _ := newTestProvider(t, &stubAuthorizer{}, nil)
	require.NoError(t, provider.LogIn(context.Background()))

	var count int
	unsubscribe := provider.Subscribe(func(State) { count++ })
	provider.Emit()
	provider.Emit()
	require.Equal(t, 2, count)

	unsubscribe()
	provider.Emit()
	require.Equal(t, 2, count)
}

func freeLoopbackAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestLoopbackAuthorizerReceivesCode(t *testing.T) {
	redirect := "http://" + freeLoopbackAddress(t) + "/callback"
	authorizer, err := NewLoopbackAuthorizer(redirect, func(string) error {
		go func() {
			resp, err := http.Get(redirect + "?code=abc&state=expected")
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := authorizer.Authorize(ctx, "http://idp.invalid/auth", "expected")
	require.NoError(t, err)
	require.Equal(t, "abc", code)
}

func TestLoopbackAuthorizerRejectsForeignState(t *testing.T) {
	redirect := "http://" + freeLoopbackAddress(t) + "/callback"
	authorizer, err := NewLoopbackAuthorizer(redirect, func(string) error {
		go func() {
			resp, err := http.Get(redirect + "?code=abc&state=forged")
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = authorizer.Authorize(ctx, "http://idp.invalid/auth", "expected")
	require.ErrorIs(t, err, ErrStateMismatch)
}

func TestNewLoopbackAuthorizerRejectsNonHTTP(t *testing.T) {
	_, err := NewLoopbackAuthorizer("fitness://callback", nil, nil)
	require.Error(t, err)
}
