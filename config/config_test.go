package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gdrive.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "5s", cfg.HTTPRetryInterval)
	assert.Equal(t, "5m", cfg.TokenSafetyMargin)
	assert.Equal(t, 0, cfg.HTTPRetryCount)
	assert.False(t, cfg.ShowTrashed)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Success(t *testing.T) {
	path := writeConfig(t, `
credentials_file = "/etc/gdrive/service-account.json"
impersonate = "user@example.com"
http_retry_count = 3
http_retry_interval = "2s"
show_trashed = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/gdrive/service-account.json", cfg.CredentialsFile)
	assert.Equal(t, "user@example.com", cfg.Impersonate)
	assert.Equal(t, 3, cfg.HTTPRetryCount)
	assert.Equal(t, "2s", cfg.HTTPRetryInterval)
	assert.True(t, cfg.ShowTrashed)

	// Unset keys keep their defaults.
	assert.Equal(t, "5m", cfg.TokenSafetyMargin)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
credentials_file = "x.json"
http_retry_cuont = 3
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown keys")
	assert.Contains(t, err.Error(), "http_retry_cuont")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `http_retry_interval = "five seconds"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http_retry_interval")
}

func TestLoad_NegativeRetryCount(t *testing.T) {
	path := writeConfig(t, `http_retry_count = -1`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http_retry_count")
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestOptions_FromConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Impersonate = "user@example.com"
	cfg.BaseURL = "http://localhost:9999"

	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestOptions_BadMargin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TokenSafetyMargin = "soon"

	_, err := cfg.Options()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_safety_margin")
}

func TestNewClient_RequiresCredentialsFile(t *testing.T) {
	cfg := DefaultConfig()

	_, err := cfg.NewClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials_file")
}
