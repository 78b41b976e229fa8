package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "https://dns.google/resolve", cfg.Resolver.DoHBaseURL)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 5432, cfg.Database.Port)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\ndatabase:\n  host: db.internal\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("ADMIN_USERNAME", "ops")
	t.Setenv("ADMIN_PASSWORD_HASH", "deadbeef")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "ops", cfg.Admin.Username)
	// The admin password hash doubles as the signing secret when none is
	// configured.
	require.Equal(t, "deadbeef", cfg.Audit.HMACSecret)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", Database: "emailguard", SSLMode: "disable"}
	dsn := c.DSN()
	require.Contains(t, dsn, "postgres://u:p@localhost:5432/emailguard")
	require.Contains(t, dsn, "sslmode=disable")
}
