// Package config centralises configuration parsing for the fitness client.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures runtime configuration values for the client.
type Config struct {
	Env            string
	LogLevel       string
	LogFilePath    string
	APIBaseURL     string
	RequestTimeout time.Duration
	OAuth          OAuthConfig
	KafkaBrokers   []string // Empty disables the recommendation watcher.
	KafkaTopic     string
	KafkaGroupID   string
	KafkaMaxBytes  int
	MetricsAddress string // Empty disables the /metrics listener.
}

// OAuthConfig describes the authorization server and this public client.
type OAuthConfig struct {
	ClientID              string
	AuthorizationEndpoint string
	TokenEndpoint         string
	RedirectURI           string
	Scopes                []string
	RefreshSkew           time.Duration
}

// Load reads environment variables into Config, applying defaults for a local Keycloak + gateway setup.
// A .env file in the working directory is loaded first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:            getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFilePath:    getEnv("LOG_FILE_PATH", ""),
		APIBaseURL:     strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080/api"), "/"),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 10*time.Second),
		OAuth: OAuthConfig{
			ClientID:              getEnv("OAUTH_CLIENT_ID", "oauth2-pkce-client"),
			AuthorizationEndpoint: getEnv("OAUTH_AUTHORIZATION_ENDPOINT", "http://localhost:8181/realms/fitness-oauth2/protocol/openid-connect/auth"),
			TokenEndpoint:         getEnv("OAUTH_TOKEN_ENDPOINT", "http://localhost:8181/realms/fitness-oauth2/protocol/openid-connect/token"),
			RedirectURI:           getEnv("OAUTH_REDIRECT_URI", "http://localhost:5173/callback"),
			Scopes:                splitAndTrim(getEnv("OAUTH_SCOPES", "openid,profile,email,offline_access")),
			RefreshSkew:           getDurationEnv("OAUTH_REFRESH_SKEW", 30*time.Second),
		},
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "recommendation_events"),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "fitness-client"),
		KafkaMaxBytes:  getIntEnv("KAFKA_MAX_BYTES", 10e6),
		MetricsAddress: getEnv("METRICS_ADDRESS", ""),
	}
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL is required"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.OAuth.ClientID == "" || c.OAuth.AuthorizationEndpoint == "" || c.OAuth.TokenEndpoint == "" {
		errs = append(errs, errors.New("OAUTH_CLIENT_ID, OAUTH_AUTHORIZATION_ENDPOINT and OAUTH_TOKEN_ENDPOINT are required"))
	}
	switch c.Env {
	case "development", "staging", "production":
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be one of development, staging, production (got %q)", c.Env))
	}
	return errors.Join(errs...)
}

// Development reports whether human-oriented log output should be used.
func (c Config) Development() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
