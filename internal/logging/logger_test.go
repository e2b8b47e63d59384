package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fitness.log")
	logger, err := New(Options{Level: "info", FilePath: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("session token applied")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"session token applied"`)
	require.Contains(t, string(data), `"timestamp"`)
	require.NotContains(t, string(data), "hidden")
}
