// Package auth decodes the identity claims carried by access and ID tokens.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when there is no token to decode.
var ErrMissingToken = errors.New("missing bearer token")

// ErrMalformedToken wraps decoding errors.
var ErrMalformedToken = errors.New("malformed bearer token")

// Claims is the normalized view of a token payload. Raw keeps every claim for the session user record.
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Username  string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
	Raw       map[string]any
}

// DecodeClaims reads the payload of a JWT without verifying its signature.
// The client holds no signing key; the gateway verifies every request it forwards.
func DecodeClaims(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return FromMap(mapClaims), nil
}

// FromMap normalizes an already decoded claim set, such as the session's user record.
func FromMap(raw map[string]any) *Claims {
	mapClaims := jwt.MapClaims(raw)
	claims := &Claims{
		Raw:    raw,
		Scopes: normalizeScopes(mapClaims["scope"]),
	}
	claims.Subject, _ = mapClaims["sub"].(string)
	claims.Email, _ = mapClaims["email"].(string)
	claims.Name, _ = mapClaims["name"].(string)
	claims.Username, _ = mapClaims["preferred_username"].(string)

	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims
}

func normalizeScopes(value any) map[string]struct{} {
	out := make(map[string]struct{})
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if str, ok := item.(string); ok && str != "" {
				out[str] = struct{}{}
			}
		}
	case []string:
		for _, str := range v {
			if str != "" {
				out[str] = struct{}{}
			}
		}
	case string:
		for _, str := range strings.Fields(v) {
			out[str] = struct{}{}
		}
	}
	return out
}

// ScopeList returns the granted scopes in sorted order.
func (c *Claims) ScopeList() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Scopes))
	for scope := range c.Scopes {
		out = append(out, scope)
	}
	sort.Strings(out)
	return out
}

// DisplayName picks the friendliest identifier available.
func (c *Claims) DisplayName() string {
	if c == nil {
		return ""
	}
	for _, candidate := range []string{c.Name, c.Username, c.Email, c.Subject} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
