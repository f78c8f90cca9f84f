package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tunevault/service_layer/internal/apperr"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUI_RPC_URL", "https://node.example.com")
	t.Setenv("SUI_PRIVATE_KEY", "AAAA")
	t.Setenv("SUI_PACKAGE_ID", "0xpkg")
	t.Setenv("TREASURY_CAP_ID", "0xcap")
	t.Setenv("TRACK_SUPPLY_REGISTRY_ID", "0xsupply")
	t.Setenv("VAULT_REGISTRY_ID", "0xvaults")
	t.Setenv("YIELD_PROTOCOL_ID", "0xyield")
	t.Setenv("TUNEVAULT_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://node.example.com", cfg.Ledger.RPCURL)
	require.Equal(t, "0xpkg", cfg.Ledger.PackageID)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "0.0.0.0:8080", cfg.Addr())
	require.Equal(t, "@every 1m", cfg.Reconcile.Schedule)
	require.Equal(t, float64(5), cfg.Ledger.SubmitRatePerSec)
}

func TestLoadMissingRequiredField(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUI_PRIVATE_KEY", "")
	os.Unsetenv("SUI_PRIVATE_KEY")

	_, err := Load()
	require.Error(t, err)
	require.True(t, apperr.IsConfig(err))
	require.Contains(t, err.Error(), "SUI_PRIVATE_KEY")
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  host: 127.0.0.1
  port: 9090
logging:
  level: debug
reconcile:
  enabled: true
  schedule: "@every 30s"
`), 0o600))
	t.Setenv("TUNEVAULT_CONFIG", path)
	t.Setenv("TUNEVAULT_PORT", "9191")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Server.Host)
	require.Equal(t, 9191, cfg.Server.Port, "env must override file")
	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Reconcile.Enabled)
	require.Equal(t, "@every 30s", cfg.Reconcile.Schedule)
}

func TestLoadInvalidPort(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUNEVAULT_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	require.True(t, apperr.IsConfig(err))
}

func TestDSNImpliesPostgresDriver(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TUNEVAULT_DB_DSN", "postgres://localhost/tunevault")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Database.Driver)
}
