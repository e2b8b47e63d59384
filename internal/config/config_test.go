package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_BASE_URL", "REQUEST_TIMEOUT", "KAFKA_BROKERS", "APP_ENV", "OAUTH_SCOPES"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	require.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	require.Equal(t, 10*time.Second, cfg.RequestTimeout)
	require.Equal(t, "oauth2-pkce-client", cfg.OAuth.ClientID)
	require.Equal(t, []string{"openid", "profile", "email", "offline_access"}, cfg.OAuth.Scopes)
	require.Empty(t, cfg.KafkaBrokers)
	require.True(t, cfg.Development())
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://gateway.example.com/api/")
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092 ,")
	t.Setenv("KAFKA_MAX_BYTES", "2048")
	t.Setenv("APP_ENV", "production")

	cfg := Load()

	require.Equal(t, "https://gateway.example.com/api", cfg.APIBaseURL)
	require.Equal(t, 3*time.Second, cfg.RequestTimeout)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 2048, cfg.KafkaMaxBytes)
	require.False(t, cfg.Development())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Config{Env: "qa", RequestTimeout: 0}

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "API_BASE_URL")
	require.Contains(t, err.Error(), "REQUEST_TIMEOUT")
	require.Contains(t, err.Error(), "APP_ENV")
}
