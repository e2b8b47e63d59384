package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	httptransport "example.com/fitness/internal/transport/http"
)

// ErrStateMismatch is returned when the redirect carries a state other than the one sent.
var ErrStateMismatch = errors.New("authorization response state mismatch")

// BrowserOpener hands the authorization URL to the user agent.
type BrowserOpener func(authURL string) error

// LoopbackAuthorizer receives the authorization redirect on a local listener (RFC 8252 section 7.3).
type LoopbackAuthorizer struct {
	redirect *url.URL
	open     BrowserOpener
	logger   *zap.Logger
}

// NewLoopbackAuthorizer listens on the host and path of redirectURI while a login is in flight.
func NewLoopbackAuthorizer(redirectURI string, open BrowserOpener, logger *zap.Logger) (*LoopbackAuthorizer, error) {
	parsed, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("parse redirect uri: %w", err)
	}
	if parsed.Scheme != "http" || parsed.Host == "" {
		return nil, fmt.Errorf("redirect uri %q must be an http loopback address", redirectURI)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopbackAuthorizer{redirect: parsed, open: open, logger: logger}, nil
}

type authorizationResult struct {
	code string
	err  error
}

// Authorize opens authURL and blocks until the redirect arrives or ctx ends.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL, state string) (string, error) {
	results := make(chan authorizationResult, 1)

	path := a.redirect.Path
	if path == "" {
		path = "/"
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		res := parseRedirect(r.URL.Query(), state)
		if res.err != nil {
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = w.Write([]byte("Login complete. You can close this window."))
		}
		select {
		case results <- res:
		default:
		}
	})

	listener, err := net.Listen("tcp", a.redirect.Host)
	if err != nil {
		return "", fmt.Errorf("listen on redirect address: %w", err)
	}
	server := httptransport.NewServer(httptransport.DefaultServerConfig(a.redirect.Host), mux)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("redirect listener stopped", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if a.open != nil {
		if err := a.open(authURL); err != nil {
			return "", fmt.Errorf("open browser: %w", err)
		}
	}

	select {
	case res := <-results:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func parseRedirect(query url.Values, state string) authorizationResult {
	if reason := query.Get("error"); reason != "" {
		return authorizationResult{err: fmt.Errorf("authorization denied: %s %s", reason, query.Get("error_description"))}
	}
	if query.Get("state") != state {
		return authorizationResult{err: ErrStateMismatch}
	}
	code := query.Get("code")
	if code == "" {
		return authorizationResult{err: errors.New("authorization response missing code")}
	}
	return authorizationResult{code: code}
}
