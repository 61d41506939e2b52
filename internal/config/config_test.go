package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-inventory-client/internal/config"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("INVENTORY_CONFIG_FILE", "")
	t.Setenv("INVENTORY_API_URL", "http://localhost:3001/api/")
	t.Setenv("INVENTORY_IDENTITY_URL", "http://localhost:9999")
	t.Setenv("INVENTORY_IDENTITY_PUBLIC_KEY", "anon-key")
}

func TestConfig_Defaults(t *testing.T) {
	setRequired(t)
	c := config.New()
	require.NoError(t, c.Validate())

	require.Equal(t, "http://localhost:3001/api", c.GetAPIBaseURL())
	require.Equal(t, 2, c.GetMaxRetries())
	require.Equal(t, 2*time.Second, c.GetRetryDelay())
	require.Equal(t, 100*time.Millisecond, c.GetRedirectDelay())
	require.Equal(t, 5*time.Second, c.GetSessionTimeout())
	require.Equal(t, config.StorageFile, c.GetStorageKind())
	require.Equal(t, "./data/session.json", c.GetStoragePath())
	require.Equal(t, "info", c.GetLogLevel())
}

func TestConfig_MissingRequired(t *testing.T) {
	t.Setenv("INVENTORY_CONFIG_FILE", "")
	t.Setenv("INVENTORY_API_URL", "")
	t.Setenv("INVENTORY_IDENTITY_URL", "")
	t.Setenv("INVENTORY_IDENTITY_PUBLIC_KEY", "")

	err := config.New().Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "INVENTORY_API_URL")
	require.Contains(t, err.Error(), "INVENTORY_IDENTITY_URL")
	require.Contains(t, err.Error(), "INVENTORY_IDENTITY_PUBLIC_KEY")
}

func TestConfig_InvalidValuesFallBack(t *testing.T) {
	setRequired(t)
	t.Setenv("INVENTORY_MAX_RETRIES", "lots")
	t.Setenv("INVENTORY_RETRY_DELAY", "soon")

	c := config.New()
	require.Equal(t, 2, c.GetMaxRetries())
	require.Equal(t, 2*time.Second, c.GetRetryDelay())
}

func TestConfig_InvalidStorage(t *testing.T) {
	setRequired(t)
	t.Setenv("INVENTORY_STORAGE", "floppy")

	err := config.New().Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "INVENTORY_STORAGE")
}

func TestConfig_FileOverlay(t *testing.T) {
	setRequired(t)
	t.Setenv("INVENTORY_API_URL", "")
	t.Setenv("INVENTORY_STORAGE", "")

	path := filepath.Join(t.TempDir(), "inventory.yaml")
	content := "INVENTORY_API_URL: https://api.example.com\nINVENTORY_MAX_RETRIES: 4\nINVENTORY_STORAGE: sqlite\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("INVENTORY_CONFIG_FILE", path)
	t.Setenv("INVENTORY_MAX_RETRIES", "")

	c := config.New()
	require.NoError(t, c.Validate())
	require.Equal(t, "https://api.example.com", c.GetAPIBaseURL())
	require.Equal(t, 4, c.GetMaxRetries())
	require.Equal(t, config.StorageSQLite, c.GetStorageKind())
	require.Equal(t, "./data/session.db", c.GetStoragePath())

	t.Run("env wins over file", func(t *testing.T) {
		t.Setenv("INVENTORY_MAX_RETRIES", "1")
		require.Equal(t, 1, config.New().GetMaxRetries())
	})
}

func TestConfig_MissingFile(t *testing.T) {
	setRequired(t)
	t.Setenv("INVENTORY_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	err := config.New().Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "config file")
}
