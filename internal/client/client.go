// Package client is the typed wrapper around the backend activity API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"example.com/fitness/internal/domain"
	"example.com/fitness/internal/observability"
	"example.com/fitness/internal/session"
)

const (
	// DefaultTimeout bounds a single request when no other timeout is configured.
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 4 << 20
	maxDetailLength  = 200
)

// CredentialSource supplies the session whose token authorizes each request.
type CredentialSource interface {
	Snapshot() session.Session
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-request deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.timeout = d }
}

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// Client issues one request attempt per call. It does not cache and does not retry.
type Client struct {
	baseURL string
	creds   CredentialSource
	http    *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// New builds a Client for the API rooted at baseURL, e.g. http://localhost:8080/api.
func New(baseURL string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create validates draft locally and posts it. Every call carries a fresh Idempotency-Key.
func (c *Client) Create(ctx context.Context, draft domain.Draft) (*domain.Activity, error) {
	const op = "create activity"
	if err := draft.Validate(); err != nil {
		observability.ObserveRequest(op, domain.KindValidation.String(), 0)
		return nil, err
	}

	body, err := json.Marshal(draft)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindValidation, Op: op, Detail: "encode draft", Err: err}
	}

	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())

	var activity domain.Activity
	if err := c.do(ctx, op, http.MethodPost, "/activities", body, header, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// List returns the caller's activities in server order. An empty collection is not an error.
func (c *Client) List(ctx context.Context) ([]domain.Activity, error) {
	var activities []domain.Activity
	if err := c.do(ctx, "list activities", http.MethodGet, "/activities", nil, nil, &activities); err != nil {
		return nil, err
	}
	if activities == nil {
		activities = []domain.Activity{}
	}
	return activities, nil
}

// Get fetches one activity. A missing id, or one owned by someone else, yields a KindNotFound error.
func (c *Client) Get(ctx context.Context, id string) (*domain.Activity, error) {
	const op = "get activity"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &domain.Error{Kind: domain.KindNotFound, Op: op, Detail: "empty activity id"}
	}

	var activity domain.Activity
	if err := c.do(ctx, op, http.MethodGet, "/activities/"+url.PathEscape(id), nil, nil, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, header http.Header, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = domain.KindOf(err).String()
		}
		observability.ObserveRequest(op, outcome, time.Since(start))
	}()

	current := c.creds.Snapshot()
	if !current.Authenticated() {
		return &domain.Error{Kind: domain.KindUnauthorized, Op: op, Detail: "no session token"}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.Error{Kind: domain.KindNetwork, Op: op, Detail: "build request", Err: err}
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+current.Token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if sub := current.User.Subject(); sub != "" {
		req.Header.Set("X-User-ID", sub)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("activity api request failed", zap.String("op", op), zap.Error(err))
		return &domain.Error{Kind: domain.KindNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &domain.Error{Kind: domain.KindNetwork, Op: op, Status: resp.StatusCode, Detail: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := statusError(op, resp.StatusCode, payload)
		c.logger.Debug("activity api returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("kind", apiErr.Kind.String()),
		)
		return apiErr
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return &domain.Error{Kind: domain.KindNetwork, Op: op, Status: resp.StatusCode, Detail: "decode response", Err: err}
	}
	return nil
}

// KindForStatus maps an HTTP status to the failure taxonomy.
func KindForStatus(status int) domain.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return domain.KindUnauthorized
	case status == http.StatusNotFound:
		return domain.KindNotFound
	case status >= 400 && status < 500:
		return domain.KindValidation
	default:
		return domain.KindNetwork
	}
}

// problem is the {"type","detail"} error body the backend returns.
type problem struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

func statusError(op string, status int, body []byte) *domain.Error {
	apiErr := &domain.Error{Kind: KindForStatus(status), Op: op, Status: status}

	var p problem
	trimmed := strings.TrimSpace(string(body))
	switch {
	case json.Unmarshal(body, &p) == nil && p.Detail != "":
		apiErr.Detail = p.Detail
	case trimmed != "":
		apiErr.Detail = truncateDetail(trimmed)
	default:
		apiErr.Detail = http.StatusText(status)
	}
	if p.Type != "" {
		apiErr.Err = fmt.Errorf("api error type %s", p.Type)
	}
	return apiErr
}

// truncateDetail shortens s to at most maxDetailLength bytes without splitting a rune.
func truncateDetail(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	cut := maxDetailLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
